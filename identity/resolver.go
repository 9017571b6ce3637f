// Package identity resolves an archival-group URI to a stable identity and
// synthesises the internal URIs the rest of the pipeline needs.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/digirati-co-uk/iiif-builder/httpclient"
	"github.com/digirati-co-uk/iiif-builder/result"
)

// Identity is the resolved identity of an archival group, plus the
// internal URIs synthesised from its public manifest URI.
type Identity struct {
	PID             string
	ManifestURI     string
	CatalogueAPIURI string
	Catirn          string

	InternalPublicManifestURI string
	InternalAPIManifestURI    string
	CanvasIDPrefix            string
	AssetPrefix               string
}

// Aliases are the two ordered URI rewrites used to support dev/test
// environments where public URIs differ from what the identity service
// was seeded with.
type Aliases struct {
	Container map[string]string
	Host      map[string]string
}

// ParseAliases parses two comma-separated src:dst strings. A whitespace-
// only string means "no aliases", matching the original's semantics.
func ParseAliases(containerCSV, hostCSV string) Aliases {
	return Aliases{
		Container: parsePairs(containerCSV),
		Host:      parsePairs(hostCSV),
	}
}

func parsePairs(csv string) map[string]string {
	out := make(map[string]string)
	if strings.TrimSpace(csv) == "" {
		return out
	}
	for _, pair := range strings.Split(csv, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			continue
		}
		out[parts[0]] = parts[1]
	}
	return out
}

// mutate applies the container and host alias rewrites to uri, in that
// order, before it is sent to the identity service.
func (a Aliases) mutate(rawURI string) string {
	u, err := url.Parse(rawURI)
	if err != nil {
		return rawURI
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) >= 2 {
		penultimate := segments[len(segments)-2]
		if alias, ok := a.Container[penultimate]; ok {
			segments[len(segments)-2] = alias
			u.Path = "/" + strings.Join(segments, "/")
		}
	}

	if alias, ok := a.Host[u.Hostname()]; ok {
		u.Host = alias
	}

	return u.String()
}

// Resolver calls the identity service.
type Resolver struct {
	http              *httpclient.Client
	baseURL           string
	apiHeader         string
	apiKey            string
	aliases           Aliases
	publicPrefix      string
	csHost            string
	customerID        string
}

// Config configures a Resolver.
type Config struct {
	BaseURL      string
	APIHeader    string
	APIKey       string
	Aliases      Aliases
	PublicPrefix string // stripped to build internal URIs
	CSHost       string
	CustomerID   string
}

// New builds a Resolver.
func New(http *httpclient.Client, cfg Config) *Resolver {
	return &Resolver{
		http:         http,
		baseURL:      cfg.BaseURL,
		apiHeader:    cfg.APIHeader,
		apiKey:       cfg.APIKey,
		aliases:      cfg.Aliases,
		publicPrefix: cfg.PublicPrefix,
		csHost:       cfg.CSHost,
		customerID:   cfg.CustomerID,
	}
}

type identityResults struct {
	Results []identityResult `json:"results"`
}

type identityResult struct {
	ID              string `json:"id"`
	ManifestURI     string `json:"manifesturi"`
	CatalogueAPIURI string `json:"catalogueapiuri"`
	Catirn          string `json:"catirn"`
}

// Resolve calls GET /ids?q=<mutated_uri>&s=repositoryuri and expects
// exactly one result.
func (r *Resolver) Resolve(ctx context.Context, agURI string) result.Envelope[Identity] {
	mutated := r.aliases.mutate(agURI)

	query := url.Values{}
	query.Set("q", mutated)
	query.Set("s", "repositoryuri")
	requestURL := fmt.Sprintf("%s/ids?%s", strings.TrimSuffix(r.baseURL, "/"), query.Encode())

	req := httpclient.NewRequest("GET", requestURL)
	if r.apiHeader != "" {
		req.Headers[r.apiHeader] = r.apiKey
	}

	resp, err := r.http.Execute(req)
	if err != nil || !resp.IsSuccess() {
		return result.Err[Identity]("failed to read identity service")
	}

	var parsed identityResults
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return result.Err[Identity]("malformed identity service response")
	}

	switch len(parsed.Results) {
	case 0:
		return result.Err[Identity]("No results from identity service")
	case 1:
		// fallthrough to resolve below
	default:
		return result.Err[Identity]("Multiple results from identity service")
	}

	hit := parsed.Results[0]
	id := Identity{
		PID:             hit.ID,
		ManifestURI:     hit.ManifestURI,
		CatalogueAPIURI: hit.CatalogueAPIURI,
		Catirn:          hit.Catirn,
	}
	r.synthesizeInternalURIs(&id)
	return result.Ok(id)
}

// synthesizeInternalURIs derives the internal public manifest URI from the
// public manifest URI, using a true prefix strip, and the internal API
// manifest URI and canvas/asset prefixes from the PID. The original
// implementation used a character-set strip (str.lstrip) here, which is a
// known defect this worker does not reproduce.
func (r *Resolver) synthesizeInternalURIs(id *Identity) {
	remaining := strings.TrimPrefix(id.ManifestURI, r.publicPrefix)
	remaining = strings.TrimPrefix(remaining, "/")

	id.InternalPublicManifestURI = fmt.Sprintf("%s/%s/%s", r.csHost, r.customerID, remaining)
	id.InternalAPIManifestURI = fmt.Sprintf("%s/%s/manifests/%s", r.csHost, r.customerID, id.PID)
	id.CanvasIDPrefix = fmt.Sprintf("%s/%s/canvases/%s_", r.csHost, r.customerID, id.PID)
	id.AssetPrefix = id.PID + "_"
}
