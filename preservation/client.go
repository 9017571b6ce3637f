// Package preservation talks to the digital preservation repository: the
// ActivityStreams activity feed, archival-group JSON, and METS XML.
package preservation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"golang.org/x/time/rate"

	"github.com/digirati-co-uk/iiif-builder/httpclient"
	"github.com/digirati-co-uk/iiif-builder/result"
)

// Activity is one ActivityStreams event: an archival group was created,
// updated or deleted.
type Activity struct {
	EndTime  time.Time
	Type     string
	ObjectID string
}

// StorageFile is one entry in an ArchivalGroup's storage map.
type StorageFile struct {
	FullPath string
}

// ArchivalGroup is the preservation repository's JSON view of a bundle.
type ArchivalGroup struct {
	Origin     string
	StorageMap map[string]StorageFile
}

// Client is the Azure AD authenticated preservation API client. The OAuth2
// token is cached on the underlying credential and renewed silently on
// miss — no separate cache struct is needed.
type Client struct {
	http          *httpclient.Client
	credential    *azidentity.ClientSecretCredential
	scope         string
	identityHdr   string
	identityValue string
	limiter       *rate.Limiter
}

// Config configures a preservation Client.
type Config struct {
	TenantID       string
	ClientID       string
	ClientSecret   string
	IdentityHeader string
	IdentityValue  string
}

// New builds a Client that acquires tokens via the Azure AD
// client-credentials flow, scoped to api://<client_id>/.default — the Go
// equivalent of the original's msal.ConfidentialClientApplication flow.
func New(http *httpclient.Client, cfg Config) (*Client, error) {
	cred, err := azidentity.NewClientSecretCredential(cfg.TenantID, cfg.ClientID, cfg.ClientSecret, nil)
	if err != nil {
		return nil, fmt.Errorf("building client secret credential: %w", err)
	}

	return &Client{
		http:          http,
		credential:    cred,
		scope:         fmt.Sprintf("api://%s/.default", cfg.ClientID),
		identityHdr:   cfg.IdentityHeader,
		identityValue: cfg.IdentityValue,
		limiter:       rate.NewLimiter(rate.Limit(5), 10),
	}, nil
}

func (c *Client) authedRequest(ctx context.Context, method, url string) (*httpclient.Request, error) {
	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: []string{c.scope}})
	if err != nil {
		return nil, fmt.Errorf("acquiring preservation token: %w", err)
	}

	req := httpclient.NewRequest(method, url)
	req.Headers["Authorization"] = "Bearer " + token.Token
	if c.identityHdr != "" && c.identityValue != "" {
		req.Headers[c.identityHdr] = c.identityValue
	}
	return req, nil
}

type activityPage struct {
	OrderedItems []rawActivity `json:"orderedItems"`
	Prev         *idRef        `json:"prev"`
}

type rawActivity struct {
	EndTime  string `json:"endTime"`
	Type     string `json:"type"`
	Object   idRef  `json:"object"`
}

type idRef struct {
	ID string `json:"id"`
}

type streamRoot struct {
	Last idRef `json:"last"`
}

// Activities walks streamURI from its last page backwards via each page's
// prev link, stopping as soon as an endTime <= since is seen. Within each
// page, orderedItems is oldest-first on the wire, so items are visited in
// reverse there too — newest first throughout the whole walk. The returned
// slice is in the order collected during the walk (newest first); the
// caller (StreamReader) reverses it to process oldest-first, so the
// watermark advances monotonically. The walk itself is never retried: a
// failed poll yields a failure envelope (activities collected before the
// failure are discarded) and the next tick retries from the same watermark.
func (c *Client) Activities(ctx context.Context, streamURI string, since time.Time) result.Envelope[[]Activity] {
	req, err := c.authedRequest(ctx, "GET", streamURI)
	if err != nil {
		return result.Err[[]Activity]("failed to obtain preservation token")
	}
	resp, err := c.http.Execute(req)
	if err != nil || !resp.IsSuccess() {
		return result.Err[[]Activity]("failed to read activity stream root")
	}

	var root streamRoot
	if err := json.Unmarshal(resp.Body, &root); err != nil {
		return result.Err[[]Activity]("malformed activity stream root")
	}

	var collected []Activity
	pageURI := root.Last.ID

	for pageURI != "" {
		if err := c.limiter.Wait(ctx); err != nil {
			return result.Err[[]Activity]("rate limiter interrupted")
		}

		pageReq, err := c.authedRequest(ctx, "GET", pageURI)
		if err != nil {
			return result.Err[[]Activity]("failed to obtain preservation token")
		}
		pageResp, err := c.http.Execute(pageReq)
		if err != nil || !pageResp.IsSuccess() {
			return result.Err[[]Activity]("failed to read activity stream page")
		}

		var page activityPage
		if err := json.Unmarshal(pageResp.Body, &page); err != nil {
			return result.Err[[]Activity]("malformed activity stream page")
		}

		items, stop, err := activitiesFromPage(page, since)
		if err != nil {
			return result.Err[[]Activity](err.Error())
		}
		collected = append(collected, items...)
		if stop || page.Prev == nil {
			break
		}
		pageURI = page.Prev.ID
	}

	return result.Ok(collected)
}

// activitiesFromPage extracts the activities on one feed page newer than
// since, newest first, and reports whether the walk should stop (an item
// at or older than since was reached). orderedItems is oldest-first on the
// wire, so the page is walked in reverse to match the newest-first
// contract the rest of the walk keeps.
func activitiesFromPage(page activityPage, since time.Time) ([]Activity, bool, error) {
	var items []Activity
	for i := len(page.OrderedItems) - 1; i >= 0; i-- {
		item := page.OrderedItems[i]
		endTime, err := time.Parse(time.RFC3339, item.EndTime)
		if err != nil {
			return items, false, fmt.Errorf("malformed activity endTime")
		}
		if !endTime.After(since) {
			return items, true, nil
		}
		items = append(items, Activity{EndTime: endTime, Type: item.Type, ObjectID: item.Object.ID})
	}
	return items, false, nil
}

type rawArchivalGroup struct {
	Origin     string `json:"origin"`
	StorageMap struct {
		Files map[string]struct {
			FullPath string `json:"fullPath"`
		} `json:"files"`
	} `json:"storageMap"`
}

// ArchivalGroup fetches and parses the archival-group JSON document.
func (c *Client) ArchivalGroup(ctx context.Context, uri string) result.Envelope[ArchivalGroup] {
	req, err := c.authedRequest(ctx, "GET", uri)
	if err != nil {
		return result.Err[ArchivalGroup]("failed to obtain preservation token")
	}
	resp, err := c.http.Execute(req)
	if err != nil || !resp.IsSuccess() {
		return result.Err[ArchivalGroup]("failed to read archival group")
	}

	var raw rawArchivalGroup
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return result.Err[ArchivalGroup]("malformed archival group document")
	}

	ag := ArchivalGroup{Origin: raw.Origin, StorageMap: make(map[string]StorageFile, len(raw.StorageMap.Files))}
	for path, f := range raw.StorageMap.Files {
		ag.StorageMap[path] = StorageFile{FullPath: f.FullPath}
	}
	return result.Ok(ag)
}

// METS fetches the raw METS XML for an archival group, appending the
// ?view=mets query string.
func (c *Client) METS(ctx context.Context, uri string) result.Envelope[[]byte] {
	full := uri
	if strings.Contains(uri, "?") {
		full += "&view=mets"
	} else {
		full += "?view=mets"
	}

	req, err := c.authedRequest(ctx, "GET", full)
	if err != nil {
		return result.Err[[]byte]("failed to obtain preservation token")
	}
	resp, err := c.http.Execute(req)
	if err != nil || !resp.IsSuccess() {
		return result.Err[[]byte]("failed to read METS document")
	}
	return result.Ok(resp.Body)
}
