package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStrings(t *testing.T) {
	orig := []byte("hello")
	new1 := StringFromBytes(orig)
	new2 := DeepCopyStringFromBytes(orig)
	orig[0] = 'H'

	assert.Equal(t, "Hello", new1, "shared backing bytes must reflect changes")
	assert.Equal(t, "hello", new2, "deep copy must not")
}
