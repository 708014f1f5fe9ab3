package errors

import (
	"testing"
)

func TestValidateTimer(t *testing.T) {
	tests := []struct {
		seconds int
		wantErr bool
	}{
		{3, false},
		{5, false},
		{10, false},
		{0, true},
		{4, true},
		{-3, true},
		{30, true},
	}

	for _, tt := range tests {
		err := ValidateTimer(tt.seconds)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateTimer(%d) error = %v, wantErr %v", tt.seconds, err, tt.wantErr)
		}
		if err != nil && !Is(err, ErrCodeInvalidTimer) {
			t.Errorf("ValidateTimer(%d) code = %v, want %v", tt.seconds, GetCode(err), ErrCodeInvalidTimer)
		}
	}
}

func TestValidateID(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid uuid", "0b9e7f3c-1f7a-4d0e-9c55-4c1b8a4e2f10", false},
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"not a uuid", "render-1", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateID(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateID(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateRenderName(t *testing.T) {
	id, err := ValidateRenderName("0b9e7f3c-1f7a-4d0e-9c55-4c1b8a4e2f10.png")
	if err != nil {
		t.Fatalf("ValidateRenderName: %v", err)
	}
	if id != "0b9e7f3c-1f7a-4d0e-9c55-4c1b8a4e2f10" {
		t.Errorf("id = %q", id)
	}

	for _, name := range []string{"", "x.png", "0b9e7f3c-1f7a-4d0e-9c55-4c1b8a4e2f10.jpg", "../secret.png"} {
		if _, err := ValidateRenderName(name); !Is(err, ErrCodeNotFound) {
			t.Errorf("ValidateRenderName(%q) = %v, want NOT_FOUND", name, err)
		}
	}
}

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"relative", "public/renders", false},
		{"absolute", "/var/lib/photobooth/renders", false},
		{"empty", "", true},
		{"null byte", "renders\x00", true},
		{"control char", "ren\x01ders", true},
		{"too long", string(make([]byte, 501)), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePath(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateURL(t *testing.T) {
	tests := []struct {
		input   string
		wantErr bool
	}{
		{"http://camera.local/snapshot.jpg", false},
		{"https://booth.example.com", false},
		{"", true},
		{"ftp://camera.local", true},
		{"camera.local/snapshot.jpg", true},
	}

	for _, tt := range tests {
		err := ValidateURL(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
	}
}
