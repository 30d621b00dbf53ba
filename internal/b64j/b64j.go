// Package b64j implements the JSON-safe base64 variant used to encode the
// hub's HTTP Basic Authorization header. It is the standard base64 alphabet
// with '/' replaced by '@' so the encoded value can be embedded in a JSON
// body without escaping. Both encoder and decoder must agree on the variant.
package b64j

import "encoding/base64"

// Encoding is the standard base64 alphabet with '/' swapped for '@'.
var Encoding = base64.NewEncoding(
	"ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+@",
).WithPadding(base64.StdPadding)

// EncodeToString encodes data using the JSON-safe alphabet.
func EncodeToString(data []byte) string {
	return Encoding.EncodeToString(data)
}

// DecodeString decodes a string produced by EncodeToString.
func DecodeString(s string) ([]byte, error) {
	return Encoding.DecodeString(s)
}
