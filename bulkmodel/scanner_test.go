package bulkmodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func scanAll(t *testing.T, input string) []tokenKind {
	var scan scanner
	scan.init([]byte(input))
	kinds := make([]tokenKind, 0, 16)
	for {
		tok, err := scan.next()
		assert.NoError(t, err, "input: %s", input)
		kinds = append(kinds, tok.kind)
		if tok.kind == tokenEOF {
			return kinds
		}
	}
}

func TestScannerTokenSequence(t *testing.T) {
	kinds := scanAll(t, `{"a": 1, "b": [true, null, "x"], "c": {}}`)
	assert.Equal(t, []tokenKind{
		tokenObjectBegin,
		tokenName, tokenNumber,
		tokenName, tokenArrayBegin, tokenTrue, tokenNull, tokenString, tokenArrayEnd,
		tokenName, tokenObjectBegin, tokenObjectEnd,
		tokenObjectEnd,
		tokenEOF,
	}, kinds)
}

func TestScannerEmptyContainers(t *testing.T) {
	assert.Equal(t, []tokenKind{tokenObjectBegin, tokenObjectEnd, tokenEOF}, scanAll(t, `{}`))
	assert.Equal(t, []tokenKind{tokenArrayBegin, tokenArrayEnd, tokenEOF}, scanAll(t, ` [ ] `))
}

func TestScannerStringOffsets(t *testing.T) {
	var scan scanner
	input := []byte(`{"key": "va\"lue"}`)
	scan.init(input)

	tok, err := scan.next()
	assert.NoError(t, err)
	assert.Equal(t, tokenObjectBegin, tok.kind)

	name, err := scan.next()
	assert.NoError(t, err)
	assert.Equal(t, tokenName, name.kind)
	assert.Equal(t, "key", string(input[name.start:name.end]))
	assert.False(t, name.escaped)

	value, err := scan.next()
	assert.NoError(t, err)
	assert.Equal(t, tokenString, value.kind)
	assert.Equal(t, `va\"lue`, string(input[value.start:value.end]))
	assert.True(t, value.escaped)
}

func TestScannerNumbers(t *testing.T) {
	var scan scanner
	input := []byte(`[-12, 3.5e+2]`)
	scan.init(input)

	_, _ = scan.next() // [
	first, err := scan.next()
	assert.NoError(t, err)
	assert.Equal(t, "-12", string(input[first.start:first.end]))

	second, err := scan.next()
	assert.NoError(t, err)
	assert.Equal(t, "3.5e+2", string(input[second.start:second.end]))
}

func TestScannerErrors(t *testing.T) {
	for _, input := range []string{
		`{"a" 1}`,
		`{"a": 1,,}`,
		`{"a": tru}`,
		`"unterminated`,
		`{"a": 1} extra`,
	} {
		var scan scanner
		scan.init([]byte(input))
		var err error
		for i := 0; i < 32; i++ {
			var tok token
			tok, err = scan.next()
			if err != nil || tok.kind == tokenEOF {
				break
			}
		}
		assert.Error(t, err, "input: %s", input)
	}
}

func TestUnescapeJSONString(t *testing.T) {
	assert.Equal(t, "plain", unescapeJSONString([]byte(`plain`)))
	assert.Equal(t, "a\"b\\c/d", unescapeJSONString([]byte(`a\"b\\c\/d`)))
	assert.Equal(t, "tab\there", unescapeJSONString([]byte(`tab\there`)))
	assert.Equal(t, "ä", unescapeJSONString([]byte(`ä`)))
	assert.Equal(t, "𝄞", unescapeJSONString([]byte(`𝄞`)), "surrogate pair")
	assert.Equal(t, "�", unescapeJSONString([]byte(`\ud834`)), "lone surrogate degrades")
}
