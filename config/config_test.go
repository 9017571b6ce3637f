package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	vars := map[string]string{
		"POSTGRES_CONNECTION":           "postgres://localhost/iiif",
		"PRESERVATION_ACTIVITY_STREAM":  "https://repo.example/activities",
		"PRESERVATION_CLIENT_ID":        "client-id",
		"PRESERVATION_CLIENT_SECRET":    "client-secret",
		"PRESERVATION_CLIENT_TENANT_ID": "tenant-id",
	}
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	setRequiredEnv(t)

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, s.ActivityStreamReadInterval)
	assert.Equal(t, "X-API-KEY", s.IdentityServiceAPIHeader)
	assert.False(t, s.ConstructCatalogueAPIURI)
	assert.Empty(t, s.ArchivalGroupPrefixes)
}

func TestLoadMissingRequiredFails(t *testing.T) {
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadParsesListAndCutoff(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ARCHIVAL_GROUP_PREFIXES_TO_PROCESS", "cc, iiifb/demo/deep")
	t.Setenv("ACTIVITY_CUTOFF_DATE", "now")

	s, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"cc", "iiifb/demo/deep"}, s.ArchivalGroupPrefixes)
	assert.True(t, s.ActivityCutoff.UseNow)
}

func TestParseCutoffFixedTimestamp(t *testing.T) {
	c := parseCutoff("2025-01-01T00:00:00Z")
	assert.False(t, c.UseNow)
	assert.Equal(t, 2025, c.Fixed.Year())
}
