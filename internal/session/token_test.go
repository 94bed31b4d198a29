package session

import (
	"testing"
	"time"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("secret")

	raw, err := s.Sign("sid-1", time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("Sign error: %v", err)
	}

	id, err := s.Parse(raw)
	if err != nil {
		t.Fatalf("Parse error: %v", err)
	}
	if id != "sid-1" {
		t.Fatalf("id = %q, want sid-1", id)
	}
}

func TestSigner_Rejects(t *testing.T) {
	s := NewSigner("secret")

	expired, _ := s.Sign("sid", time.Now().Add(-time.Minute))
	foreign, _ := NewSigner("other").Sign("sid", time.Now().Add(time.Hour))
	valid, _ := s.Sign("sid", time.Now().Add(time.Hour))

	cases := map[string]string{
		"expired":  expired,
		"foreign":  foreign,
		"tampered": valid[:len(valid)-2] + "xx",
		"garbage":  "not-a-token",
		"bare id":  "7f7c2b9e-2c1e-4a57-9d7e-3b0f0a1b2c3d",
	}

	for name, raw := range cases {
		if _, err := s.Parse(raw); err == nil {
			t.Fatalf("%s: expected Parse to fail", name)
		}
	}
}
