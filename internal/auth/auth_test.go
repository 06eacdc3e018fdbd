package auth

import (
	"encoding/base64"
	"errors"
	"testing"
)

func TestGateAcceptsMatchingCredential(t *testing.T) {
	gate := NewGate("quail", "hunter2")
	header := "Basic " + base64.StdEncoding.EncodeToString([]byte("quail:hunter2"))
	if err := gate.Check(header); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestGateRejects(t *testing.T) {
	gate := NewGate("quail", "hunter2")
	tests := []struct {
		name   string
		header string
	}{
		{"empty", ""},
		{"wrong passphrase", "Basic " + base64.StdEncoding.EncodeToString([]byte("quail:wrong"))},
		{"wrong identifier", "Basic " + base64.StdEncoding.EncodeToString([]byte("robin:hunter2"))},
		{"bearer scheme", "Bearer sometoken"},
		{"raw token", base64.StdEncoding.EncodeToString([]byte("quail:hunter2"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := gate.Check(tt.header); !errors.Is(err, ErrInvalidCredential) {
				t.Errorf("Check(%q) = %v, want ErrInvalidCredential", tt.header, err)
			}
		})
	}
}

func TestGateTrimsWhitespace(t *testing.T) {
	gate := NewGate("quail", "hunter2")
	header := "  Basic " + base64.StdEncoding.EncodeToString([]byte("quail:hunter2")) + " "
	if err := gate.Check(header); err != nil {
		t.Fatalf("Check with surrounding whitespace: %v", err)
	}
}
