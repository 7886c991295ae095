package bulkmodel

import (
	"unicode/utf16"
	"unicode/utf8"

	"github.com/relex/eslog-forwarder/util"
)

// FieldProxy is a lazily-decoded string field inside a pooled response object.
//
// Until the first Value call it only holds the byte range of the raw (possibly escaped) contents
// inside the response buffer; decoding and interning happen on first access. Most bulk responses
// carry thousands of items whose fields are never read, so the work is deferred until needed.
type FieldProxy struct {
	buf     []byte
	start   int32
	length  int32
	escaped bool
	decoded bool
	cache   *internCache // nil to bypass interning for values that vary per item
	value   string
}

func (proxy *FieldProxy) set(buf []byte, tok token, cache *internCache) {
	proxy.buf = buf
	proxy.start = int32(tok.start)
	proxy.length = int32(tok.end - tok.start)
	proxy.escaped = tok.escaped
	proxy.decoded = false
	proxy.cache = cache
	proxy.value = ""
}

// IsPresent reports whether the field existed in the source document
func (proxy *FieldProxy) IsPresent() bool {
	return proxy.decoded || proxy.buf != nil
}

// Value decodes the field on first access and returns the cached result afterwards.
// A missing field decodes to the empty string.
func (proxy *FieldProxy) Value() string {
	if proxy.decoded {
		return proxy.value
	}
	if proxy.buf == nil {
		return ""
	}
	raw := proxy.buf[proxy.start : proxy.start+proxy.length]
	switch {
	case proxy.escaped:
		decoded := unescapeJSONString(raw)
		if proxy.cache != nil {
			decoded = proxy.cache.internString(decoded)
		}
		proxy.value = decoded
	case proxy.cache != nil:
		proxy.value = proxy.cache.intern(raw)
	default:
		proxy.value = string(raw)
	}
	proxy.decoded = true
	proxy.buf = nil
	proxy.cache = nil
	return proxy.value
}

func (proxy *FieldProxy) reset() {
	*proxy = FieldProxy{}
}

// unescapeJSONString decodes backslash escapes in the raw contents of a JSON string.
// Invalid escapes degrade to replacement characters instead of failing: by the time this runs
// the scanner has already accepted the enclosing document.
func unescapeJSONString(raw []byte) string {
	decoded := make([]byte, 0, len(raw))
	i := 0
	for i < len(raw) {
		c := raw[i]
		if c != '\\' {
			decoded = append(decoded, c)
			i++
			continue
		}
		i++
		if i >= len(raw) {
			decoded = append(decoded, '\\')
			break
		}
		switch raw[i] {
		case '"':
			decoded = append(decoded, '"')
		case '\\':
			decoded = append(decoded, '\\')
		case '/':
			decoded = append(decoded, '/')
		case 'b':
			decoded = append(decoded, '\b')
		case 'f':
			decoded = append(decoded, '\f')
		case 'n':
			decoded = append(decoded, '\n')
		case 'r':
			decoded = append(decoded, '\r')
		case 't':
			decoded = append(decoded, '\t')
		case 'u':
			r, consumed := decodeUnicodeEscape(raw[i:])
			decoded = utf8.AppendRune(decoded, r)
			i += consumed - 1
		default:
			decoded = append(decoded, raw[i])
		}
		i++
	}
	// decoded is freshly built and never mutated again, safe to hand over its backing array
	return util.StringFromBytes(decoded)
}

// decodeUnicodeEscape decodes "uXXXX" (and a following low surrogate if paired), returning the
// rune and the numbers of bytes consumed starting from 'u'.
func decodeUnicodeEscape(raw []byte) (rune, int) {
	if len(raw) < 5 {
		return utf8.RuneError, 1
	}
	high, ok := parseHex4(raw[1:5])
	if !ok {
		return utf8.RuneError, 1
	}
	if utf16.IsSurrogate(rune(high)) && len(raw) >= 11 && raw[5] == '\\' && raw[6] == 'u' {
		if low, ok2 := parseHex4(raw[7:11]); ok2 {
			if combined := utf16.DecodeRune(rune(high), rune(low)); combined != utf8.RuneError {
				return combined, 11
			}
		}
	}
	if utf16.IsSurrogate(rune(high)) {
		return utf8.RuneError, 5
	}
	return rune(high), 5
}

func parseHex4(raw []byte) (uint32, bool) {
	var value uint32
	for _, c := range raw {
		value <<= 4
		switch {
		case c >= '0' && c <= '9':
			value |= uint32(c - '0')
		case c >= 'a' && c <= 'f':
			value |= uint32(c-'a') + 10
		case c >= 'A' && c <= 'F':
			value |= uint32(c-'A') + 10
		default:
			return 0, false
		}
	}
	return value, true
}
