package base

import (
	"time"
)

// Setting keys understood by the pipeline. Values are read through the Settings provider and
// re-read in full whenever a change is signaled.
const (
	KeyEndpoints        = "elasticsearch.endpoints"        // semicolon-separated list of base URLs
	KeyAuthScheme       = "elasticsearch.auth.scheme"      // none, basic, digest, ntlm, kerberos, negotiate
	KeyAuthUsername     = "elasticsearch.auth.username"    //
	KeyAuthPassword     = "elasticsearch.auth.password"    //
	KeyAuthDomain       = "elasticsearch.auth.domain"      //
	KeyConcurrency      = "elasticsearch.concurrency"      // max bulk requests on the line, >= 1
	KeyMaxMessages      = "elasticsearch.maxmessages"      // max events per bulk request, 0 = unlimited
	KeyMaxSize          = "elasticsearch.maxsize"          // max bulk request payload, e.g. "5 MB"
	KeyIndexName        = "elasticsearch.index"            // target index name
	KeyOrganizationID   = "elasticsearch.organizationid"   // free-form metadata copied to documents
	KeyOrganizationName = "elasticsearch.organizationname" // free-form metadata copied to documents
	KeyQueueCapacity    = "elasticsearch.queuecapacity"    // intake queue capacity
	KeyBlockOnFull      = "elasticsearch.blockonfull"      // block producers instead of discarding when full
	KeyCompression      = "elasticsearch.compression"      // gzip request bodies
	KeyTimeout          = "elasticsearch.timeout"          // HTTP request timeout
)

// Settings is the typed key to value provider consumed by the pipeline.
//
// Implementations must make all values from one configuration generation visible together: the
// processing loop re-reads every key after a change notification and before assembling the next
// batch, never in the middle of one.
type Settings interface {
	GetString(key string) string
	GetInt(key string) int
	GetBool(key string) bool
	GetDuration(key string) time.Duration

	// OnChange registers a callback invoked after any value may have changed. The callback must
	// be cheap and non-blocking; it typically only flips a flag for the processing loop.
	OnChange(callback func())
}
