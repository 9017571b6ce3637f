package catalogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digirati-co-uk/iiif-builder/httpclient"
)

func TestReadReturnsDataOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"Title":"A Book"}}`))
	}))
	defer srv.Close()

	c := New(httpclient.New(), "X-API-KEY", "k")
	envelope := c.Read(context.Background(), srv.URL)
	require.True(t, envelope.Success())
	assert.Equal(t, "A Book", envelope.Value()["Title"])
}

func TestReadFallsBackToErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"unknown identifier"}`))
	}))
	defer srv.Close()

	c := New(httpclient.New(), "", "")
	envelope := c.Read(context.Background(), srv.URL)
	assert.True(t, envelope.Failure())
	assert.Contains(t, envelope.Error(), "unknown identifier")
}

func TestReadFallsBackToStatusCode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(httpclient.New(), "", "")
	envelope := c.Read(context.Background(), srv.URL)
	assert.True(t, envelope.Failure())
	assert.Contains(t, envelope.Error(), "500")
}
