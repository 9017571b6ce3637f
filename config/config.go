// Package config loads the immutable Settings snapshot the rest of the
// worker is built from. No other package reads os.Getenv directly.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// env reads environment variables with an optional prefix.
type env struct {
	prefix string
}

func (e env) key(name string) string {
	if e.prefix == "" {
		return name
	}
	return e.prefix + "_" + name
}

func (e env) str(name, def string) string {
	if v := os.Getenv(e.key(name)); v != "" {
		return v
	}
	return def
}

func (e env) mustStr(name string) (string, error) {
	v := os.Getenv(e.key(name))
	if v == "" {
		return "", fmt.Errorf("required environment variable %s not set", e.key(name))
	}
	return v, nil
}

func (e env) boolean(name string, def bool) bool {
	v := os.Getenv(e.key(name))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (e env) duration(name string, def time.Duration) time.Duration {
	v := os.Getenv(e.key(name))
	if v == "" {
		return def
	}
	seconds, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return time.Duration(seconds) * time.Second
}

func (e env) slice(name string) []string {
	v := os.Getenv(e.key(name))
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// CutoffPolicy describes how the JobStore should pick a watermark floor
// when no activity has ever been observed.
type CutoffPolicy struct {
	UseNow bool
	Fixed  time.Time // zero if neither UseNow nor a parsed timestamp applies
}

// Settings is the complete, immutable configuration surface for the
// process, built once at startup from the environment.
type Settings struct {
	PostgresConnection string

	ActivityStreamReadInterval time.Duration
	PreservationActivityStream string
	ActivityCutoff             CutoffPolicy

	PreservationClientID          string
	PreservationClientSecret      string
	PreservationClientTenantID    string
	PreservationIdentityHeaderKey string
	PreservationIdentityValue     string

	PreservationContainerAliases string
	PreservationHostAliases      string

	ArchivalGroupPrefixes []string

	IdentityServiceBaseURL   string
	IdentityServiceAPIHeader string
	IdentityServiceAPIKey    string

	RewrittenPublicIIIFPrefix string

	IIIFCSPresentationHost   string
	IIIFCSCustomerID         string
	IIIFCSAssetSpaceID       string
	IIIFCSBasicCredentials   string
	ConstructCatalogueAPIURI bool

	CatalogueAPIPrefix    string
	CatalogueAPIKeyHeader string
	CatalogueAPIKeyValue  string

	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// Load builds Settings from the process environment. It fails fast on
// missing required values.
func Load() (*Settings, error) {
	e := env{}

	conn, err := e.mustStr("POSTGRES_CONNECTION")
	if err != nil {
		return nil, err
	}
	stream, err := e.mustStr("PRESERVATION_ACTIVITY_STREAM")
	if err != nil {
		return nil, err
	}
	clientID, err := e.mustStr("PRESERVATION_CLIENT_ID")
	if err != nil {
		return nil, err
	}
	clientSecret, err := e.mustStr("PRESERVATION_CLIENT_SECRET")
	if err != nil {
		return nil, err
	}
	tenantID, err := e.mustStr("PRESERVATION_CLIENT_TENANT_ID")
	if err != nil {
		return nil, err
	}

	identityHeaderKey := e.str("PRESERVATION_CLIENT_IDENTITY_HEADER", "X-Client-Identity")
	identityValue := e.str("IIIF_BUILDER_IDENTITY", "")

	s := &Settings{
		PostgresConnection: conn,

		ActivityStreamReadInterval: e.duration("ACTIVITY_STREAM_READ_INTERVAL", 60*time.Second),
		PreservationActivityStream: stream,
		ActivityCutoff:             parseCutoff(e.str("ACTIVITY_CUTOFF_DATE", "")),

		PreservationClientID:          clientID,
		PreservationClientSecret:      clientSecret,
		PreservationClientTenantID:    tenantID,
		PreservationIdentityHeaderKey: identityHeaderKey,
		PreservationIdentityValue:     identityValue,

		PreservationContainerAliases: e.str("PRESERVATION_COLLECTIONS_CONTAINER_ALIASES", ""),
		PreservationHostAliases:      e.str("PRESERVATION_COLLECTIONS_HOST_ALIASES", ""),

		ArchivalGroupPrefixes: e.slice("ARCHIVAL_GROUP_PREFIXES_TO_PROCESS"),

		IdentityServiceBaseURL:   e.str("IDENTITY_SERVICE_BASE_URL", ""),
		IdentityServiceAPIHeader: e.str("IDENTITY_SERVICE_API_HEADER", "X-API-KEY"),
		IdentityServiceAPIKey:    e.str("IDENTITY_SERVICE_API_KEY", ""),

		RewrittenPublicIIIFPrefix: e.str("REWRITTEN_PUBLIC_IIIF_PRESENTATION_PREFIX", ""),

		IIIFCSPresentationHost:   e.str("IIIF_CS_PRESENTATION_HOST", ""),
		IIIFCSCustomerID:         e.str("IIIF_CS_CUSTOMER_ID", ""),
		IIIFCSAssetSpaceID:       e.str("IIIF_CS_ASSET_SPACE_ID", ""),
		IIIFCSBasicCredentials:   e.str("IIIF_CS_BASIC_CREDENTIALS", ""),
		ConstructCatalogueAPIURI: e.boolean("CONSTRUCT_CATALOGUE_API_URI", false),

		CatalogueAPIPrefix:    e.str("MVP_CATALOGUE_API_PREFIX", ""),
		CatalogueAPIKeyHeader: e.str("MVP_CATALOGUE_API_KEY_HEADER", "X-API-KEY"),
		CatalogueAPIKeyValue:  e.str("MVP_CATALOGUE_API_KEY_VALUE", ""),

		LogLevel:    e.str("LOG_LEVEL", "info"),
		LogFormat:   e.str("LOG_FORMAT", "text"),
		MetricsAddr: e.str("METRICS_ADDR", ":9090"),
	}

	return s, nil
}

func parseCutoff(raw string) CutoffPolicy {
	switch {
	case raw == "":
		return CutoffPolicy{}
	case strings.EqualFold(raw, "now"):
		return CutoffPolicy{UseNow: true}
	default:
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			return CutoffPolicy{Fixed: t}
		}
		return CutoffPolicy{}
	}
}
