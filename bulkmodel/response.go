package bulkmodel

import (
	"fmt"
	"net/http"

	"github.com/relex/eslog-forwarder/util"
)

// BulkResponse is the parsed result of one bulk request, borrowed from an ObjectPool.
//
// The item list order matches the request's item order one to one. Call Release exactly once
// when done; the response and everything reachable from it is invalid afterwards.
type BulkResponse struct {
	Took      int
	HasErrors bool
	items     []*BulkItem
	pool      *ObjectPool
}

// ItemCount returns the numbers of per-item outcomes
func (response *BulkResponse) ItemCount() int {
	return len(response.items)
}

// Item returns the outcome at the given request position
func (response *BulkResponse) Item(index int) *BulkItem {
	return response.items[index]
}

// Release returns the response and all owned sub-objects to the pool
func (response *BulkResponse) Release() {
	response.pool.putResponse(response)
}

// BulkItem is the outcome of one action in a bulk request
type BulkItem struct {
	Action      FieldProxy // action name wrapping the outcome, e.g. "create"
	Status      int        // HTTP-style status code of this item
	Index       FieldProxy
	ID          FieldProxy
	Result      FieldProxy
	Version     int64
	SeqNo       int64
	PrimaryTerm int64
	Shards      *ShardInfo    // nil if absent
	Err         *ErrorDetails // nil if the item carries no error object
}

// IsSuccess reports whether the item was accepted by the server
func (item *BulkItem) IsSuccess() bool {
	return item.Status >= 200 && item.Status < 300
}

// IsRetryable reports whether the item failed transiently and should be resent
func (item *BulkItem) IsRetryable() bool {
	return item.Status == http.StatusTooManyRequests
}

// ErrorDetails describes a failed item
type ErrorDetails struct {
	Type      FieldProxy
	Reason    FieldProxy
	IndexUUID FieldProxy
	Shard     FieldProxy
	Index     FieldProxy
}

// ShardInfo is the per-item shard summary
type ShardInfo struct {
	Failed     int
	Successful int
	Total      int
}

// ParseBulkResponse decodes a bulk response document into pooled objects.
//
// data must remain valid and unmodified until the returned response is released, as string
// fields are decoded lazily from it. On error no response is returned and all partially filled
// objects are back in the pool.
func ParseBulkResponse(pool *ObjectPool, data []byte) (*BulkResponse, error) {
	parser := responseParser{pool: pool}
	parser.scan.init(data)

	response := pool.getResponse()
	if err := parser.parseResponse(response, data); err != nil {
		pool.putResponse(response)
		return nil, err
	}
	return response, nil
}

type responseParser struct {
	scan scanner
	pool *ObjectPool
}

func (parser *responseParser) parseResponse(response *BulkResponse, data []byte) error {
	if err := parser.expect(tokenObjectBegin); err != nil {
		return err
	}
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		if tok.kind == tokenObjectEnd {
			break
		}
		if tok.kind != tokenName {
			return fmt.Errorf("unexpected token in response object")
		}
		switch util.StringFromBytes(data[tok.start:tok.end]) {
		case "took":
			took, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			response.Took = int(took)
		case "errors":
			val, berr := parser.nextBool()
			if berr != nil {
				return berr
			}
			response.HasErrors = val
		case "items":
			if err := parser.parseItems(response, data); err != nil {
				return err
			}
		default:
			if err := parser.skipValue(); err != nil {
				return err
			}
		}
	}
	return nil
}

func (parser *responseParser) parseItems(response *BulkResponse, data []byte) error {
	if err := parser.expect(tokenArrayBegin); err != nil {
		return err
	}
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokenArrayEnd:
			return nil
		case tokenObjectBegin:
			item := parser.pool.getItem()
			if err := parser.parseItem(item, data); err != nil {
				parser.pool.putItem(item)
				return err
			}
			response.items = append(response.items, item)
		default:
			return fmt.Errorf("unexpected token in items array")
		}
	}
}

// parseItem decodes one {"<action>": {...}} wrapper
func (parser *responseParser) parseItem(item *BulkItem, data []byte) error {
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		if tok.kind == tokenObjectEnd {
			return nil
		}
		if tok.kind != tokenName {
			return fmt.Errorf("unexpected token in item wrapper")
		}
		if item.Action.IsPresent() {
			// second action in one wrapper is not a thing; skip to stay forward-only
			if err := parser.skipValue(); err != nil {
				return err
			}
			continue
		}
		item.Action.set(data, tok, parser.pool.cache)
		if err := parser.parseItemOutcome(item, data); err != nil {
			return err
		}
	}
}

func (parser *responseParser) parseItemOutcome(item *BulkItem, data []byte) error {
	if err := parser.expect(tokenObjectBegin); err != nil {
		return err
	}
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		if tok.kind == tokenObjectEnd {
			return nil
		}
		if tok.kind != tokenName {
			return fmt.Errorf("unexpected token in item outcome")
		}
		switch util.StringFromBytes(data[tok.start:tok.end]) {
		case "status":
			status, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			item.Status = int(status)
		case "_index":
			if err := parser.nextProxy(&item.Index, data, parser.pool.cache); err != nil {
				return err
			}
		case "_id":
			// document ids vary per item and would only pollute the intern cache
			if err := parser.nextProxy(&item.ID, data, nil); err != nil {
				return err
			}
		case "result":
			if err := parser.nextProxy(&item.Result, data, parser.pool.cache); err != nil {
				return err
			}
		case "_version":
			value, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			item.Version = value
		case "_seq_no":
			value, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			item.SeqNo = value
		case "_primary_term":
			value, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			item.PrimaryTerm = value
		case "_shards":
			info := parser.pool.getShardInfo()
			if err := parser.parseShards(info, data); err != nil {
				parser.pool.putShardInfo(info)
				return err
			}
			item.Shards = info
		case "error":
			details := parser.pool.getErrorDetails()
			if err := parser.parseError(details, data); err != nil {
				parser.pool.putErrorDetails(details)
				return err
			}
			item.Err = details
		default:
			if err := parser.skipValue(); err != nil {
				return err
			}
		}
	}
}

func (parser *responseParser) parseShards(info *ShardInfo, data []byte) error {
	if err := parser.expect(tokenObjectBegin); err != nil {
		return err
	}
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		if tok.kind == tokenObjectEnd {
			return nil
		}
		if tok.kind != tokenName {
			return fmt.Errorf("unexpected token in _shards object")
		}
		switch util.StringFromBytes(data[tok.start:tok.end]) {
		case "failed":
			value, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			info.Failed = int(value)
		case "successful":
			value, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			info.Successful = int(value)
		case "total":
			value, nerr := parser.nextInt(data)
			if nerr != nil {
				return nerr
			}
			info.Total = int(value)
		default:
			if err := parser.skipValue(); err != nil {
				return err
			}
		}
	}
}

func (parser *responseParser) parseError(details *ErrorDetails, data []byte) error {
	if err := parser.expect(tokenObjectBegin); err != nil {
		return err
	}
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		if tok.kind == tokenObjectEnd {
			return nil
		}
		if tok.kind != tokenName {
			return fmt.Errorf("unexpected token in error object")
		}
		switch util.StringFromBytes(data[tok.start:tok.end]) {
		case "type":
			if err := parser.nextProxy(&details.Type, data, parser.pool.cache); err != nil {
				return err
			}
		case "reason":
			if err := parser.nextProxy(&details.Reason, data, parser.pool.cache); err != nil {
				return err
			}
		case "index_uuid":
			if err := parser.nextProxy(&details.IndexUUID, data, parser.pool.cache); err != nil {
				return err
			}
		case "shard":
			if err := parser.nextProxy(&details.Shard, data, parser.pool.cache); err != nil {
				return err
			}
		case "index":
			if err := parser.nextProxy(&details.Index, data, parser.pool.cache); err != nil {
				return err
			}
		default:
			if err := parser.skipValue(); err != nil {
				return err
			}
		}
	}
}

func (parser *responseParser) expect(kind tokenKind) error {
	tok, err := parser.scan.next()
	if err != nil {
		return err
	}
	if tok.kind != kind {
		return fmt.Errorf("unexpected token kind %d, expected %d", tok.kind, kind)
	}
	return nil
}

// nextProxy reads a string (or number, for fields some server versions emit unquoted) into proxy
func (parser *responseParser) nextProxy(proxy *FieldProxy, data []byte, cache *internCache) error {
	tok, err := parser.scan.next()
	if err != nil {
		return err
	}
	switch tok.kind {
	case tokenString, tokenNumber:
		proxy.set(data, tok, cache)
		return nil
	case tokenNull:
		proxy.reset()
		return nil
	default:
		return fmt.Errorf("expected string value")
	}
}

func (parser *responseParser) nextInt(data []byte) (int64, error) {
	tok, err := parser.scan.next()
	if err != nil {
		return 0, err
	}
	if tok.kind != tokenNumber {
		return 0, fmt.Errorf("expected numeric value")
	}
	return parseIntBytes(data[tok.start:tok.end])
}

func (parser *responseParser) nextBool() (bool, error) {
	tok, err := parser.scan.next()
	if err != nil {
		return false, err
	}
	switch tok.kind {
	case tokenTrue:
		return true, nil
	case tokenFalse:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean value")
	}
}

// skipValue consumes one value of any shape in O(its token count)
func (parser *responseParser) skipValue() error {
	depth := 0
	for {
		tok, err := parser.scan.next()
		if err != nil {
			return err
		}
		switch tok.kind {
		case tokenObjectBegin, tokenArrayBegin:
			depth++
		case tokenObjectEnd, tokenArrayEnd:
			depth--
		case tokenEOF:
			return fmt.Errorf("unexpected end of input while skipping value")
		}
		if depth == 0 {
			return nil
		}
	}
}

func parseIntBytes(raw []byte) (int64, error) {
	if len(raw) == 0 {
		return 0, fmt.Errorf("empty number")
	}
	negative := false
	start := 0
	if raw[0] == '-' {
		negative = true
		start = 1
	}
	var value int64
	for _, c := range raw[start:] {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("invalid integer %q", raw)
		}
		value = value*10 + int64(c-'0')
	}
	if negative {
		value = -value
	}
	return value, nil
}
