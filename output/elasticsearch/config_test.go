package elasticsearch

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/gotils/logger"
	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints: "http://es1.example.com:9200",
	}), logger.Root())
	assert.NoError(t, err)
	assert.Equal(t, []string{"http://es1.example.com:9200"}, cfg.Endpoints)
	assert.Equal(t, AuthNone, cfg.Scheme)
	assert.Equal(t, defs.RequestConcurrencyDefault, cfg.Concurrency)
	assert.Equal(t, 0, cfg.MaxMessages)
	assert.Equal(t, defs.RequestMaxSizeDefault, cfg.MaxSizeBytes)
	assert.Equal(t, "logs", cfg.IndexName)
	assert.Equal(t, defs.IntakeQueueDefaultCapacity, cfg.QueueCapacity)
	assert.Equal(t, defs.RequestTimeout, cfg.Timeout)
	assert.False(t, cfg.BlockOnFull)
	assert.False(t, cfg.Compression)
}

func TestLoadConfigEndpointList(t *testing.T) {
	cfg, err := LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints: " http://es1:9200 ; https://es2:9200/ ;;",
	}), logger.Root())
	assert.NoError(t, err)
	assert.Equal(t, []string{"http://es1:9200", "https://es2:9200/"}, cfg.Endpoints)

	_, err = LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints: " ; ",
	}), logger.Root())
	assert.ErrorContains(t, err, base.KeyEndpoints)
}

func TestLoadConfigClamping(t *testing.T) {
	cfg, err := LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints:   "http://es1:9200",
		base.KeyConcurrency: -3,
		base.KeyMaxMessages: -1,
		base.KeyMaxSize:     "1 KB",
		base.KeyTimeout:     -time.Second,
	}), logger.Root())
	assert.NoError(t, err)
	assert.Equal(t, defs.RequestConcurrencyDefault, cfg.Concurrency)
	assert.Equal(t, 0, cfg.MaxMessages)
	assert.Equal(t, defs.RequestMaxSizeMin, cfg.MaxSizeBytes)
	assert.Equal(t, defs.RequestTimeout, cfg.Timeout)

	cfg, err = LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints: "http://es1:9200",
		base.KeyMaxSize:   "10 GB",
	}), logger.Root())
	assert.NoError(t, err)
	assert.Equal(t, defs.RequestMaxSizeMax, cfg.MaxSizeBytes)

	cfg, err = LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints: "http://es1:9200",
		base.KeyMaxSize:   "twenty bytes",
	}), logger.Root())
	assert.NoError(t, err)
	assert.Equal(t, defs.RequestMaxSizeDefault, cfg.MaxSizeBytes)
}

func TestLoadConfigAuthSchemes(t *testing.T) {
	cfg, err := LoadConfig(newTestSettings(map[string]interface{}{
		base.KeyEndpoints:    "http://es1:9200",
		base.KeyAuthScheme:   "Basic",
		base.KeyAuthUsername: "ingest",
		base.KeyAuthPassword: "s3cret",
	}), logger.Root())
	assert.NoError(t, err)
	assert.Equal(t, AuthBasic, cfg.Scheme)
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("ingest:s3cret")),
		cfg.AuthorizationHeader())

	cfg.Domain = "CORP"
	assert.Equal(t, "Basic "+base64.StdEncoding.EncodeToString([]byte("CORP\\ingest:s3cret")),
		cfg.AuthorizationHeader())

	// schemes needing challenge-response handshakes degrade to unauthenticated
	for _, scheme := range []string{"digest", "ntlm", "kerberos", "negotiate", "bogus"} {
		cfg, err := LoadConfig(newTestSettings(map[string]interface{}{
			base.KeyEndpoints:  "http://es1:9200",
			base.KeyAuthScheme: scheme,
		}), logger.Root())
		assert.NoError(t, err)
		assert.Equal(t, AuthNone, cfg.Scheme, scheme)
		assert.Equal(t, "", cfg.AuthorizationHeader(), scheme)
	}
}
