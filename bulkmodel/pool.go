package bulkmodel

import (
	"github.com/relex/eslog-forwarder/util"
	"github.com/relex/gotils/logger"
)

// ObjectPool owns free-lists of response objects and the interned-string cache shared across
// parses. It is passed explicitly to every constructor that allocates pooled children and is not
// safe for concurrent use: the processing loop is its only user.
//
// Returning a response to the pool is the only path that resets it, and the reset cascades
// recursively through all owned sub-objects. Using an object after its return is a defect.
type ObjectPool struct {
	responses    []*BulkResponse
	items        []*BulkItem
	errorDetails []*ErrorDetails
	shardInfos   []*ShardInfo
	cache        *internCache
}

// NewObjectPool creates an empty ObjectPool
func NewObjectPool() *ObjectPool {
	return &ObjectPool{
		cache: newInternCache(),
	}
}

func (pool *ObjectPool) getResponse() *BulkResponse {
	if n := len(pool.responses); n > 0 {
		response := pool.responses[n-1]
		pool.responses = pool.responses[:n-1]
		response.pool = pool
		return response
	}
	return &BulkResponse{pool: pool}
}

func (pool *ObjectPool) putResponse(response *BulkResponse) {
	if response.pool == nil {
		logger.Panic("BulkResponse released twice")
	}
	for _, item := range response.items {
		pool.putItem(item)
	}
	response.items = response.items[:0]
	response.Took = 0
	response.HasErrors = false
	response.pool = nil
	pool.responses = append(pool.responses, response)
}

func (pool *ObjectPool) getItem() *BulkItem {
	if n := len(pool.items); n > 0 {
		item := pool.items[n-1]
		pool.items = pool.items[:n-1]
		return item
	}
	return &BulkItem{}
}

func (pool *ObjectPool) putItem(item *BulkItem) {
	if item.Shards != nil {
		pool.putShardInfo(item.Shards)
		item.Shards = nil
	}
	if item.Err != nil {
		pool.putErrorDetails(item.Err)
		item.Err = nil
	}
	item.Action.reset()
	item.Index.reset()
	item.ID.reset()
	item.Result.reset()
	item.Status = 0
	item.Version = 0
	item.SeqNo = 0
	item.PrimaryTerm = 0
	pool.items = append(pool.items, item)
}

func (pool *ObjectPool) getErrorDetails() *ErrorDetails {
	if n := len(pool.errorDetails); n > 0 {
		details := pool.errorDetails[n-1]
		pool.errorDetails = pool.errorDetails[:n-1]
		return details
	}
	return &ErrorDetails{}
}

func (pool *ObjectPool) putErrorDetails(details *ErrorDetails) {
	details.Type.reset()
	details.Reason.reset()
	details.IndexUUID.reset()
	details.Shard.reset()
	details.Index.reset()
	pool.errorDetails = append(pool.errorDetails, details)
}

func (pool *ObjectPool) getShardInfo() *ShardInfo {
	if n := len(pool.shardInfos); n > 0 {
		info := pool.shardInfos[n-1]
		pool.shardInfos = pool.shardInfos[:n-1]
		return info
	}
	return &ShardInfo{}
}

func (pool *ObjectPool) putShardInfo(info *ShardInfo) {
	*info = ShardInfo{}
	pool.shardInfos = append(pool.shardInfos, info)
}

// internCache maps raw byte contents to previously materialized strings, so values repeated
// across items and parses (index names, result strings, error types) share one allocation.
type internCache struct {
	strings map[string]string
}

func newInternCache() *internCache {
	return &internCache{
		strings: make(map[string]string, 64),
	}
}

// intern returns the shared string equal to raw, materializing it on first sight.
// The map lookup with string(raw) does not allocate; only a miss copies the bytes.
func (cache *internCache) intern(raw []byte) string {
	if shared, ok := cache.strings[string(raw)]; ok {
		return shared
	}
	materialized := util.DeepCopyStringFromBytes(raw)
	cache.strings[materialized] = materialized
	return materialized
}

func (cache *internCache) internString(value string) string {
	if shared, ok := cache.strings[value]; ok {
		return shared
	}
	cache.strings[value] = value
	return value
}
