package publisher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirati-co-uk/iiif-builder/httpclient"
	"github.com/digirati-co-uk/iiif-builder/manifest"
)

func samplePaintedResource(origin string) manifest.PaintedResource {
	return manifest.PaintedResource{
		CanvasPainting: manifest.CanvasPainting{CanvasID: "c1", CanvasOrder: 0},
		Asset:          manifest.Asset{ID: "abcd1234_01.jpg", Origin: origin},
	}
}

func TestPublishFirstWriteSetsReingestAndNoIfMatch(t *testing.T) {
	var sawIfMatch bool
	var putBody existingManifest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			sawIfMatch = r.Header.Get("If-Match") != ""
			_ = json.NewDecoder(r.Body).Decode(&putBody)
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := New(httpclient.New(), "user:pass")
	m := manifest.Manifest{PaintedResources: []manifest.PaintedResource{samplePaintedResource("https://store/01.jpg")}}

	envelope := p.Publish(context.Background(), srv.URL, m)
	require.True(t, envelope.Success())
	assert.False(t, sawIfMatch)
	require.Len(t, putBody.PaintedResources, 1)
	assert.True(t, putBody.PaintedResources[0].Reingest)
}

func TestPublishReingestIdempotenceOnUnchangedOrigin(t *testing.T) {
	existing := existingManifest{PaintedResources: []manifest.PaintedResource{samplePaintedResource("https://store/01.jpg")}}
	existingBody, _ := json.Marshal(existing)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", `"abc"`)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(existingBody)
		case http.MethodPut:
			assert.Equal(t, `"abc"`, r.Header.Get("If-Match"))
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	p := New(httpclient.New(), "user:pass")
	m := manifest.Manifest{PaintedResources: []manifest.PaintedResource{samplePaintedResource("https://store/01.jpg")}}

	envelope := p.Publish(context.Background(), srv.URL, m)
	require.True(t, envelope.Success())
	assert.False(t, envelope.Value().PaintedResources[0].Reingest)
}

func TestPublishFlagsReingestOnChangedOrigin(t *testing.T) {
	existing := existingManifest{PaintedResources: []manifest.PaintedResource{samplePaintedResource("https://store/old.jpg")}}
	existingBody, _ := json.Marshal(existing)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("ETag", `"xyz"`)
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write(existingBody)
		case http.MethodPut:
			w.WriteHeader(http.StatusAccepted)
		}
	}))
	defer srv.Close()

	p := New(httpclient.New(), "user:pass")
	m := manifest.Manifest{PaintedResources: []manifest.PaintedResource{samplePaintedResource("https://store/new.jpg")}}

	envelope := p.Publish(context.Background(), srv.URL, m)
	require.True(t, envelope.Success())
	assert.True(t, envelope.Value().PaintedResources[0].Reingest)
}

func TestClassifyReingestOnlyFlagsFirstOccurrenceOfRepeatedAssetID(t *testing.T) {
	existing := []manifest.PaintedResource{samplePaintedResource("https://store/old.jpg")}
	updated := []manifest.PaintedResource{
		samplePaintedResource("https://store/new.jpg"),
		samplePaintedResource("https://store/new.jpg"),
	}

	out := classifyReingest(existing, updated)
	require.Len(t, out, 2)
	assert.True(t, out[0].Reingest)
	assert.False(t, out[1].Reingest)
}

func TestPublishFailsOnUnexpectedPutStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			w.WriteHeader(http.StatusNotFound)
		case http.MethodPut:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer srv.Close()

	p := New(httpclient.New(), "user:pass")
	m := manifest.Manifest{PaintedResources: []manifest.PaintedResource{samplePaintedResource("https://store/01.jpg")}}

	envelope := p.Publish(context.Background(), srv.URL, m)
	assert.True(t, envelope.Failure())
}
