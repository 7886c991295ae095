// Package elasticsearch implements the bulk-ingest pipeline stage: a bounded intake queue
// drained by a single processing loop that batches log events into NDJSON bulk requests and
// ships them to one of several redundant endpoints with automatic failover.
package elasticsearch

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/c2h5oh/datasize"
	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/logger"
)

// AuthScheme is the HTTP authentication scheme requested by configuration
type AuthScheme string

const (
	AuthNone      AuthScheme = "none"
	AuthBasic     AuthScheme = "basic"
	AuthDigest    AuthScheme = "digest"
	AuthNTLM      AuthScheme = "ntlm"
	AuthKerberos  AuthScheme = "kerberos"
	AuthNegotiate AuthScheme = "negotiate"
)

// Config is one generation of pipeline configuration, read atomically from the settings
// provider. The processing loop replaces it wholesale on reload, never field by field.
type Config struct {
	Endpoints        []string
	Scheme           AuthScheme
	Username         string
	Password         string
	Domain           string
	Concurrency      int // max bulk requests on the line
	MaxMessages      int // max events per request, 0 = unlimited
	MaxSizeBytes     int // max payload bytes per request
	IndexName        string
	OrganizationID   string
	OrganizationName string
	QueueCapacity    int
	BlockOnFull      bool
	Compression      bool
	Timeout          time.Duration
}

// LoadConfig reads and validates all pipeline settings as one generation.
//
// Out-of-range values are clamped and logged rather than rejected; only a missing endpoint list
// is a hard error, because there is nothing to fall back to.
func LoadConfig(settings base.Settings, clogger logger.Logger) (Config, error) {
	cfg := Config{
		Endpoints:        splitEndpointList(settings.GetString(base.KeyEndpoints)),
		Scheme:           AuthScheme(strings.ToLower(settings.GetString(base.KeyAuthScheme))),
		Username:         settings.GetString(base.KeyAuthUsername),
		Password:         settings.GetString(base.KeyAuthPassword),
		Domain:           settings.GetString(base.KeyAuthDomain),
		Concurrency:      settings.GetInt(base.KeyConcurrency),
		MaxMessages:      settings.GetInt(base.KeyMaxMessages),
		IndexName:        settings.GetString(base.KeyIndexName),
		OrganizationID:   settings.GetString(base.KeyOrganizationID),
		OrganizationName: settings.GetString(base.KeyOrganizationName),
		QueueCapacity:    settings.GetInt(base.KeyQueueCapacity),
		BlockOnFull:      settings.GetBool(base.KeyBlockOnFull),
		Compression:      settings.GetBool(base.KeyCompression),
		Timeout:          settings.GetDuration(base.KeyTimeout),
	}

	if len(cfg.Endpoints) == 0 {
		return cfg, fmt.Errorf("setting %s must list at least one endpoint URL", base.KeyEndpoints)
	}

	switch cfg.Scheme {
	case "":
		cfg.Scheme = AuthNone
	case AuthNone, AuthBasic:
		// supported natively
	case AuthDigest, AuthNTLM, AuthKerberos, AuthNegotiate:
		clogger.Warnf("auth scheme %q is not supported by this transport, continuing without authentication", cfg.Scheme)
		cfg.Scheme = AuthNone
	default:
		clogger.Warnf("unknown auth scheme %q, continuing without authentication", cfg.Scheme)
		cfg.Scheme = AuthNone
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defs.RequestConcurrencyDefault
	}
	if cfg.MaxMessages < 0 {
		cfg.MaxMessages = 0
	}

	cfg.MaxSizeBytes = parseMaxSize(settings.GetString(base.KeyMaxSize), clogger)

	if cfg.IndexName == "" {
		cfg.IndexName = "logs"
	}
	if cfg.QueueCapacity <= 0 {
		cfg.QueueCapacity = defs.IntakeQueueDefaultCapacity
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defs.RequestTimeout
	}
	return cfg, nil
}

// AuthorizationHeader returns the value of the Authorization header, or empty for none
func (cfg *Config) AuthorizationHeader() string {
	if cfg.Scheme != AuthBasic {
		return ""
	}
	username := cfg.Username
	if cfg.Domain != "" {
		username = cfg.Domain + "\\" + username
	}
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+cfg.Password))
}

func splitEndpointList(value string) []string {
	urls := make([]string, 0, 2)
	for _, part := range strings.Split(value, ";") {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			urls = append(urls, trimmed)
		}
	}
	return urls
}

func parseMaxSize(value string, clogger logger.Logger) int {
	maxSize := defs.RequestMaxSizeDefault
	if value != "" {
		var parsed datasize.ByteSize
		if err := parsed.UnmarshalText([]byte(value)); err != nil {
			clogger.Warnf("invalid %s value %q, using default: %s", base.KeyMaxSize, value, err.Error())
		} else {
			maxSize = int(parsed.Bytes())
		}
	}
	switch {
	case maxSize < defs.RequestMaxSizeMin:
		maxSize = defs.RequestMaxSizeMin
	case maxSize > defs.RequestMaxSizeMax:
		maxSize = defs.RequestMaxSizeMax
	}
	return maxSize
}
