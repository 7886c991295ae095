package bulkmodel

import (
	"fmt"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

// stringData returns the address of a string's backing bytes, to verify interning identity
func stringData(str string) uintptr {
	return uintptr(unsafe.Pointer(unsafe.StringData(str)))
}

func TestParseBulkResponseMixedStatuses(t *testing.T) {
	pool := NewObjectPool()
	data := []byte(`{"took":1,"errors":true,"items":[` +
		`{"create":{"status":201}},` +
		`{"create":{"status":429}},` +
		`{"create":{"status":500,"error":{"type":"x","reason":"y"}}}]}`)

	response, err := ParseBulkResponse(pool, data)
	assert.NoError(t, err)
	assert.Equal(t, 1, response.Took)
	assert.True(t, response.HasErrors)
	assert.Equal(t, 3, response.ItemCount())

	assert.Equal(t, 201, response.Item(0).Status)
	assert.True(t, response.Item(0).IsSuccess())
	assert.Nil(t, response.Item(0).Err)

	assert.Equal(t, 429, response.Item(1).Status)
	assert.True(t, response.Item(1).IsRetryable())

	assert.Equal(t, 500, response.Item(2).Status)
	assert.False(t, response.Item(2).IsSuccess())
	assert.False(t, response.Item(2).IsRetryable())
	if assert.NotNil(t, response.Item(2).Err) {
		assert.Equal(t, "x", response.Item(2).Err.Type.Value())
		assert.Equal(t, "y", response.Item(2).Err.Reason.Value())
		assert.Equal(t, "", response.Item(2).Err.IndexUUID.Value(), "absent fields decode to empty")
	}

	response.Release()
}

func TestParseBulkResponseFullDocument(t *testing.T) {
	pool := NewObjectPool()
	data := []byte(`{
		"took": 30,
		"errors": false,
		"items": [
			{"create": {
				"_index": "logs", "_id": "cT9x3YMB", "_version": 1, "result": "created",
				"_shards": {"total": 2, "successful": 1, "failed": 0},
				"_seq_no": 7, "_primary_term": 2, "status": 201
			}}
		]
	}`)

	response, err := ParseBulkResponse(pool, data)
	assert.NoError(t, err)
	assert.Equal(t, 30, response.Took)
	assert.False(t, response.HasErrors)

	item := response.Item(0)
	assert.Equal(t, "create", item.Action.Value())
	assert.Equal(t, "logs", item.Index.Value())
	assert.Equal(t, "cT9x3YMB", item.ID.Value())
	assert.Equal(t, "created", item.Result.Value())
	assert.Equal(t, int64(1), item.Version)
	assert.Equal(t, int64(7), item.SeqNo)
	assert.Equal(t, int64(2), item.PrimaryTerm)
	assert.Equal(t, 201, item.Status)
	if assert.NotNil(t, item.Shards) {
		assert.Equal(t, 2, item.Shards.Total)
		assert.Equal(t, 1, item.Shards.Successful)
		assert.Equal(t, 0, item.Shards.Failed)
	}

	response.Release()
}

func TestParseBulkResponseInterning(t *testing.T) {
	pool := NewObjectPool()
	var builder strings.Builder
	builder.WriteString(`{"took":2,"errors":false,"items":[`)
	for i := 0; i < 100; i++ {
		if i > 0 {
			builder.WriteByte(',')
		}
		fmt.Fprintf(&builder, `{"create":{"_index":"shared-index","_id":"id-%d","result":"created","status":201}}`, i)
	}
	builder.WriteString(`]}`)

	response, err := ParseBulkResponse(pool, []byte(builder.String()))
	assert.NoError(t, err)

	first := response.Item(0).Index.Value()
	for i := 1; i < response.ItemCount(); i++ {
		// interned values must share the exact same string header, not just be equal
		assert.Equal(t, stringData(first), stringData(response.Item(i).Index.Value()))
	}
	assert.NotEqual(t, response.Item(0).ID.Value(), response.Item(1).ID.Value())
	response.Release()

	// the cache persists across parses
	second, err := ParseBulkResponse(pool, []byte(`{"took":1,"errors":false,"items":[{"create":{"_index":"shared-index","status":201}}]}`))
	assert.NoError(t, err)
	assert.Equal(t, stringData(first), stringData(second.Item(0).Index.Value()))
	second.Release()
}

func TestParseBulkResponseUnknownFieldsSkipped(t *testing.T) {
	pool := NewObjectPool()
	data := []byte(`{"took":5,"ingest_took":12,"nested":{"a":[1,2,{"b":null}]},"errors":false,` +
		`"items":[{"create":{"status":200,"forwarded":true,"extra":{"deep":[[]]}}}]}`)

	response, err := ParseBulkResponse(pool, data)
	assert.NoError(t, err)
	assert.Equal(t, 5, response.Took)
	assert.Equal(t, 200, response.Item(0).Status)
	response.Release()
}

func TestParseBulkResponseEscapedStrings(t *testing.T) {
	pool := NewObjectPool()
	data := []byte(`{"took":1,"errors":true,"items":[{"create":{"status":400,` +
		`"error":{"type":"mapper_parsing_exception","reason":"failed to parse \"field\"\nline 2 ä"}}}]}`)

	response, err := ParseBulkResponse(pool, data)
	assert.NoError(t, err)
	assert.Equal(t, "failed to parse \"field\"\nline 2 ä", response.Item(0).Err.Reason.Value())
	response.Release()
}

func TestParseBulkResponseMalformed(t *testing.T) {
	pool := NewObjectPool()
	for _, malformed := range []string{
		``,
		`{`,
		`{"took":1,"errors":false,"items":[{"create":{"status":201}}]`, // missing closing object
		`{"took":}`,
		`{"took":1 "errors":false}`,
		`[1,2,3]{}`,
		`{"items":[{]}`,
	} {
		_, err := ParseBulkResponse(pool, []byte(malformed))
		assert.Error(t, err, "input: %s", malformed)
	}
}

func TestObjectPoolReuse(t *testing.T) {
	pool := NewObjectPool()
	data := []byte(`{"took":1,"errors":true,"items":[{"create":{"status":500,` +
		`"error":{"type":"x","reason":"y"},"_shards":{"failed":1,"successful":0,"total":1}}}]}`)

	response, err := ParseBulkResponse(pool, data)
	assert.NoError(t, err)
	firstItem := response.Item(0)
	response.Release()

	assert.Len(t, pool.responses, 1)
	assert.Len(t, pool.items, 1)
	assert.Len(t, pool.errorDetails, 1)
	assert.Len(t, pool.shardInfos, 1)

	again, err := ParseBulkResponse(pool, []byte(`{"took":2,"errors":false,"items":[{"create":{"status":201}}]}`))
	assert.NoError(t, err)
	assert.Same(t, firstItem, again.Item(0), "items are recycled through the pool")
	assert.Equal(t, 201, again.Item(0).Status)
	assert.Nil(t, again.Item(0).Err, "recycled item carries no stale error object")
	again.Release()
}

func TestObjectPoolDoubleReleasePanics(t *testing.T) {
	pool := NewObjectPool()
	response, err := ParseBulkResponse(pool, []byte(`{"took":1,"errors":false,"items":[]}`))
	assert.NoError(t, err)
	response.Release()
	assert.Panics(t, func() { response.Release() })
}
