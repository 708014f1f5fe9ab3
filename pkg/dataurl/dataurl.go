// Package dataurl encodes and decodes base64 data URLs, the wire form of
// stills in the handoff payload and of images posted to the API.
package dataurl

import (
	"encoding/base64"
	"errors"
	"strings"
)

// PNGPrefix is the only prefix the render endpoint accepts.
const PNGPrefix = "data:image/png;base64,"

// Sentinel errors.
var (
	// ErrPrefix is returned when the string is not a base64 data URL of an
	// accepted image type.
	ErrPrefix = errors.New("not an image data URL")

	// ErrEncoding is returned when the base64 body does not decode.
	ErrEncoding = errors.New("invalid base64 payload")
)

// acceptedImages lists data URL prefixes readable as stills.
var acceptedImages = []string{
	PNGPrefix,
	"data:image/jpeg;base64,",
	"data:image/webp;base64,",
}

// EncodePNG returns data as a PNG data URL.
func EncodePNG(data []byte) string {
	return PNGPrefix + base64.StdEncoding.EncodeToString(data)
}

// DecodePNG decodes a PNG data URL. Any other prefix is ErrPrefix.
func DecodePNG(s string) ([]byte, error) {
	body, ok := strings.CutPrefix(s, PNGPrefix)
	if !ok {
		return nil, ErrPrefix
	}
	return decodeBody(body)
}

// DecodeImage decodes a data URL carrying any accepted image type.
func DecodeImage(s string) ([]byte, error) {
	for _, prefix := range acceptedImages {
		if body, ok := strings.CutPrefix(s, prefix); ok {
			return decodeBody(body)
		}
	}
	return nil, ErrPrefix
}

// decodeBody accepts padded and unpadded base64; browsers emit padded
// output but hand-built payloads often drop the padding.
func decodeBody(body string) ([]byte, error) {
	body = strings.TrimSpace(body)
	if data, err := base64.StdEncoding.DecodeString(body); err == nil {
		return data, nil
	}
	data, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(body, "="))
	if err != nil {
		return nil, ErrEncoding
	}
	return data, nil
}
