package dataurl

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte("\x89PNG\r\n\x1a\nrest")
	got, err := DecodePNG(EncodePNG(payload))
	if err != nil {
		t.Fatalf("DecodePNG: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip = %q, want %q", got, payload)
	}
}

func TestDecodePNG(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"padded", PNGPrefix + "aGk=", "hi", nil},
		{"unpadded", PNGPrefix + "aGk", "hi", nil},
		{"empty body", PNGPrefix, "", nil},
		{"jpeg prefix", "data:image/jpeg;base64,aGk=", "", ErrPrefix},
		{"no prefix", "aGk=", "", ErrPrefix},
		{"bad base64", PNGPrefix + "!!!!", "", ErrEncoding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodePNG(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if err == nil && string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeImageAcceptsJPEG(t *testing.T) {
	got, err := DecodeImage("data:image/jpeg;base64,aGk=")
	if err != nil || string(got) != "hi" {
		t.Errorf("DecodeImage = %q, %v", got, err)
	}
	if _, err := DecodeImage("data:text/plain;base64,aGk="); !errors.Is(err, ErrPrefix) {
		t.Errorf("text data URL err = %v, want ErrPrefix", err)
	}
}
