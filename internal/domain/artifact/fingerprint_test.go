package artifact_test

import (
	"errors"
	"testing"

	"ctshub/internal/domain/artifact"
)

// TestFingerprintEquality 两个字段精确相等才算同一 fingerprint
func TestFingerprintEquality(t *testing.T) {
	a := artifact.Fingerprint{Type: "uri", Value: "https://example.com"}

	tests := []struct {
		name  string
		other artifact.Fingerprint
		equal bool
	}{
		{name: "identical", other: artifact.Fingerprint{Type: "uri", Value: "https://example.com"}, equal: true},
		{name: "different value", other: artifact.Fingerprint{Type: "uri", Value: "https://example.org"}, equal: false},
		{name: "different type", other: artifact.Fingerprint{Type: "string", Value: "https://example.com"}, equal: false},
		{name: "case sensitive", other: artifact.Fingerprint{Type: "uri", Value: "HTTPS://EXAMPLE.COM"}, equal: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := a.Equal(tt.other); got != tt.equal {
				t.Errorf("Equal(%v) = %v, want %v", tt.other, got, tt.equal)
			}
		})
	}
}

// TestNewFingerprint 构造校验
func TestNewFingerprint(t *testing.T) {
	if _, err := artifact.NewFingerprint("", "x"); !errors.Is(err, artifact.ErrEmptyField) {
		t.Errorf("expected ErrEmptyField for empty type, got %v", err)
	}
	if _, err := artifact.NewFingerprint("uri", ""); !errors.Is(err, artifact.ErrEmptyField) {
		t.Errorf("expected ErrEmptyField for empty value, got %v", err)
	}

	fp, err := artifact.NewFingerprint("ip", "10.0.0.1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if fp.Type != "ip" || fp.Value != "10.0.0.1" {
		t.Errorf("unexpected fingerprint: %+v", fp)
	}
}

// TestValidateProperties 入站 payload 字段与类型校验
func TestValidateProperties(t *testing.T) {
	tests := []struct {
		name    string
		props   map[string]string
		wantErr bool
	}{
		{name: "valid uri", props: map[string]string{"type": "uri", "value": "https://example.com"}, wantErr: false},
		{name: "valid with name", props: map[string]string{"type": "string", "name": "note", "value": "abc"}, wantErr: false},
		{name: "unsupported type", props: map[string]string{"type": "hash", "value": "abc"}, wantErr: true},
		{name: "unknown key", props: map[string]string{"type": "uri", "value": "x", "extra": "y"}, wantErr: true},
		{name: "missing type", props: map[string]string{"value": "x"}, wantErr: true},
		{name: "missing value", props: map[string]string{"type": "uri"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := artifact.ValidateProperties(tt.props)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateProperties(%v) error = %v, wantErr %v", tt.props, err, tt.wantErr)
			}
		})
	}
}
