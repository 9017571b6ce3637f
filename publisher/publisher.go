// Package publisher performs the ETag-gated read-modify-write upload of a
// manifest to the downstream IIIF cloud service.
package publisher

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/digirati-co-uk/iiif-builder/httpclient"
	"github.com/digirati-co-uk/iiif-builder/manifest"
	"github.com/digirati-co-uk/iiif-builder/result"
)

// Publisher uploads manifests to the IIIF cloud service, wrapped in a
// circuit breaker so a failing downstream stops taking new work instead
// of queueing retries behind a dead service.
type Publisher struct {
	http    *httpclient.Client
	basic   string
	breaker *gobreaker.CircuitBreaker
}

// New builds a Publisher. credentials is "username:password", matching
// the IIIF_CS_BASIC_CREDENTIALS format.
func New(http *httpclient.Client, credentials string) *Publisher {
	return &Publisher{
		http:  http,
		basic: base64.StdEncoding.EncodeToString([]byte(credentials)),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "iiif-cs-publish",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 3
			},
		}),
	}
}

// existingManifest is the subset of a retrieved manifest this worker reads
// to classify which painted resources need re-ingesting.
type existingManifest struct {
	PaintedResources []manifest.PaintedResource `json:"paintedResources"`
}

// Publish performs the GET/classify/PUT sequence against apiManifestURI.
func (p *Publisher) Publish(ctx context.Context, apiManifestURI string, m manifest.Manifest) result.Envelope[manifest.Manifest] {
	out, err := p.breaker.Execute(func() (interface{}, error) {
		return p.publish(ctx, apiManifestURI, m)
	})
	if err != nil {
		return result.Err[manifest.Manifest](err.Error())
	}
	return result.Ok(out.(manifest.Manifest))
}

func (p *Publisher) publish(ctx context.Context, apiManifestURI string, m manifest.Manifest) (manifest.Manifest, error) {
	getReq := httpclient.NewRequest("GET", apiManifestURI)
	getReq.Headers["Authorization"] = "Basic " + p.basic
	getReq.Headers["X-IIIF-CS-Show-Extras"] = "All"

	getResp, err := p.http.Execute(getReq)
	if err != nil && getResp == nil {
		return manifest.Manifest{}, fmt.Errorf("fetching existing manifest: %w", err)
	}

	var ifMatch string
	switch {
	case getResp.StatusCode == http.StatusNotFound:
		// first write: no If-Match, and with nothing to compare against every
		// distinct asset.id is flagged for re-ingest.
		m.PaintedResources = classifyReingest(nil, m.PaintedResources)
	case getResp.StatusCode == http.StatusOK:
		ifMatch = getResp.ETag
		var existing existingManifest
		if jsonErr := json.Unmarshal(getResp.Body, &existing); jsonErr != nil {
			return manifest.Manifest{}, fmt.Errorf("parsing existing manifest: %w", jsonErr)
		}
		m.PaintedResources = classifyReingest(existing.PaintedResources, m.PaintedResources)
	default:
		return manifest.Manifest{}, fmt.Errorf("unexpected status %d fetching existing manifest", getResp.StatusCode)
	}

	body, err := json.Marshal(m)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("serialising manifest: %w", err)
	}

	putReq := httpclient.NewRequest("PUT", apiManifestURI)
	putReq.Headers["Authorization"] = "Basic " + p.basic
	putReq.Headers["X-IIIF-CS-Show-Extras"] = "All"
	putReq.Headers["Content-Type"] = "application/json"
	if ifMatch != "" {
		putReq.Headers["If-Match"] = ifMatch
	}
	putReq.Body = body

	putResp, err := p.http.Execute(putReq)
	if err != nil && putResp == nil {
		return manifest.Manifest{}, fmt.Errorf("publishing manifest: %w", err)
	}
	if putResp.StatusCode != http.StatusOK && putResp.StatusCode != http.StatusAccepted {
		return manifest.Manifest{}, fmt.Errorf("unexpected status %d publishing manifest", putResp.StatusCode)
	}

	return m, nil
}

// classifyReingest marks each new painted resource reingest=true when it
// has no counterpart in the existing manifest by asset.id, or when its
// counterpart's asset.origin differs. Comparing asset.origin (not
// painted_resource.origin, which does not exist on the wire payload) is
// fixing the original's defect of comparing painted_resource.origin instead.
// Only the first occurrence of a given asset.id within updated is
// classified against existing; repeats of the same asset.id are left
// un-reingested, matching the original's seen_ids tracking.
func classifyReingest(existing, updated []manifest.PaintedResource) []manifest.PaintedResource {
	byAssetID := make(map[string]manifest.PaintedResource, len(existing))
	for _, pr := range existing {
		byAssetID[pr.Asset.ID] = pr
	}

	seen := make(map[string]bool, len(updated))
	out := make([]manifest.PaintedResource, len(updated))
	for i, pr := range updated {
		if !seen[pr.Asset.ID] {
			seen[pr.Asset.ID] = true
			prior, ok := byAssetID[pr.Asset.ID]
			if !ok || prior.Asset.Origin != pr.Asset.Origin {
				pr.Reingest = true
			}
		}
		out[i] = pr
	}
	return out
}
