// Package bulkmodel models Elasticsearch bulk API responses with minimal allocation.
//
// The parser walks the raw response bytes in a single forward-only pass and fills pooled objects
// whose string fields are lazily-decoded views over the original buffer. Responses are borrowed
// from an ObjectPool and must be returned through Release after use; the buffer passed to
// ParseBulkResponse must stay untouched until then.
package bulkmodel

import (
	"fmt"

	"github.com/relex/eslog-forwarder/util"
)

type tokenKind uint8

const (
	tokenObjectBegin tokenKind = iota
	tokenObjectEnd
	tokenArrayBegin
	tokenArrayEnd
	tokenName
	tokenString
	tokenNumber
	tokenTrue
	tokenFalse
	tokenNull
	tokenEOF
)

// token is one lexical element. For strings, start/end delimit the raw contents between the
// quotes, still escaped if escaped is set.
type token struct {
	kind    tokenKind
	start   int
	end     int
	escaped bool
}

const (
	stateValue     = iota // expecting a value
	stateNameOrEnd        // inside an object, expecting a property name or '}'
	stateNextOrEnd        // after a value inside a container, expecting ',' or the closing bracket
	stateEnd              // after the top-level value, expecting end of input
)

// scanner tokenizes a JSON document left to right with no lookahead and no buffering.
// It is reset per parse and never escapes the package.
type scanner struct {
	buf   []byte
	pos   int
	stack []byte // nesting of '{' and '['
	state int
}

func (scan *scanner) init(buf []byte) {
	scan.buf = buf
	scan.pos = 0
	scan.stack = scan.stack[:0]
	scan.state = stateValue
}

func (scan *scanner) next() (token, error) {
	for {
		scan.skipSpace()
		if scan.pos >= len(scan.buf) {
			if scan.state == stateEnd {
				return token{kind: tokenEOF}, nil
			}
			return token{}, fmt.Errorf("unexpected end of input at offset %d", scan.pos)
		}
		c := scan.buf[scan.pos]

		switch scan.state {
		case stateEnd:
			return token{}, fmt.Errorf("unexpected character %q after top-level value at offset %d", c, scan.pos)

		case stateNameOrEnd:
			switch c {
			case '}':
				return scan.closeContainer('{')
			case '"':
				tok, err := scan.scanString()
				if err != nil {
					return token{}, err
				}
				scan.skipSpace()
				if scan.pos >= len(scan.buf) || scan.buf[scan.pos] != ':' {
					return token{}, fmt.Errorf("expected ':' after property name at offset %d", scan.pos)
				}
				scan.pos++
				scan.state = stateValue
				tok.kind = tokenName
				return tok, nil
			default:
				return token{}, fmt.Errorf("expected property name or '}' at offset %d", scan.pos)
			}

		case stateNextOrEnd:
			switch c {
			case ',':
				scan.pos++
				if scan.top() == '{' {
					scan.state = stateNameOrEnd
				} else {
					scan.state = stateValue
				}
				continue
			case '}':
				return scan.closeContainer('{')
			case ']':
				return scan.closeContainer('[')
			default:
				return token{}, fmt.Errorf("expected ',' or closing bracket at offset %d", scan.pos)
			}

		default: // stateValue
			switch {
			case c == '{':
				scan.pos++
				scan.stack = append(scan.stack, '{')
				scan.state = stateNameOrEnd
				return token{kind: tokenObjectBegin}, nil
			case c == '[':
				scan.pos++
				scan.stack = append(scan.stack, '[')
				scan.state = stateValue
				return token{kind: tokenArrayBegin}, nil
			case c == ']' && scan.top() == '[':
				// empty array
				return scan.closeContainer('[')
			case c == '"':
				tok, err := scan.scanString()
				if err != nil {
					return token{}, err
				}
				scan.afterValue()
				return tok, nil
			case c == '-' || (c >= '0' && c <= '9'):
				tok := scan.scanNumber()
				scan.afterValue()
				return tok, nil
			case c == 't':
				return scan.scanLiteral("true", tokenTrue)
			case c == 'f':
				return scan.scanLiteral("false", tokenFalse)
			case c == 'n':
				return scan.scanLiteral("null", tokenNull)
			default:
				return token{}, fmt.Errorf("unexpected character %q at offset %d", c, scan.pos)
			}
		}
	}
}

func (scan *scanner) top() byte {
	if len(scan.stack) == 0 {
		return 0
	}
	return scan.stack[len(scan.stack)-1]
}

func (scan *scanner) afterValue() {
	if len(scan.stack) == 0 {
		scan.state = stateEnd
	} else {
		scan.state = stateNextOrEnd
	}
}

func (scan *scanner) closeContainer(opener byte) (token, error) {
	if scan.top() != opener {
		return token{}, fmt.Errorf("mismatched closing bracket at offset %d", scan.pos)
	}
	scan.pos++
	scan.stack = scan.stack[:len(scan.stack)-1]
	scan.afterValue()
	if opener == '{' {
		return token{kind: tokenObjectEnd}, nil
	}
	return token{kind: tokenArrayEnd}, nil
}

func (scan *scanner) skipSpace() {
	for scan.pos < len(scan.buf) {
		switch scan.buf[scan.pos] {
		case ' ', '\t', '\n', '\r':
			scan.pos++
		default:
			return
		}
	}
}

func (scan *scanner) scanString() (token, error) {
	scan.pos++ // opening quote
	start := scan.pos
	escaped := false
	for scan.pos < len(scan.buf) {
		switch scan.buf[scan.pos] {
		case '\\':
			escaped = true
			scan.pos += 2
		case '"':
			tok := token{kind: tokenString, start: start, end: scan.pos, escaped: escaped}
			scan.pos++
			return tok, nil
		default:
			scan.pos++
		}
	}
	return token{}, fmt.Errorf("unterminated string starting at offset %d", start-1)
}

func (scan *scanner) scanNumber() token {
	start := scan.pos
	for scan.pos < len(scan.buf) {
		switch c := scan.buf[scan.pos]; {
		case c >= '0' && c <= '9', c == '-', c == '+', c == '.', c == 'e', c == 'E':
			scan.pos++
		default:
			return token{kind: tokenNumber, start: start, end: scan.pos}
		}
	}
	return token{kind: tokenNumber, start: start, end: scan.pos}
}

func (scan *scanner) scanLiteral(word string, kind tokenKind) (token, error) {
	if scan.pos+len(word) > len(scan.buf) || util.StringFromBytes(scan.buf[scan.pos:scan.pos+len(word)]) != word {
		return token{}, fmt.Errorf("invalid literal at offset %d", scan.pos)
	}
	tok := token{kind: kind, start: scan.pos, end: scan.pos + len(word)}
	scan.pos += len(word)
	scan.afterValue()
	return tok, nil
}
