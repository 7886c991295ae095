package util

import (
	"unsafe"
)

// DeepCopyStringFromBytes copies the given []byte to a newly-allocated string
//
// Without references to the original backing bytes
func DeepCopyStringFromBytes(str []byte) string {
	// no other action needed; Go forces the copy internally as []byte is mutable but bytes used by string isn't
	return string(str)
}

// MutableString is a string backed by raw []byte, instead of in the immutable memory area like normal Go strings.
//
// Its contents may be changed. But we cannot create a new type or string functions wouldn't work with it.
type MutableString = string

// StringFromBytes makes a string backed by a specified []byte.
//
// There is no copying and the resulting string shares the same []byte contents.
//
// If data in the backing slice is changed, the string contents would reflect the changes (NOT normal Go string behavior).
//
// DO NOT use this in tests.
func StringFromBytes(buf []byte) MutableString {
	// code from strings.Builder.String()
	return unsafe.String(unsafe.SliceData(buf), len(buf))
}
