package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"CreativeStudio-server/models"
)

func TestCachedSignerReusesSignedURL(t *testing.T) {
	fake := &fakeSigner{}
	s := NewCachedSigner(fake, time.Hour)

	first, err := s.Sign(context.Background(), "s3://bucket/a.png")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	second, err := s.Sign(context.Background(), "s3://bucket/a.png")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if first != second {
		t.Errorf("cached url differs: %q vs %q", first, second)
	}
	if fake.calls.Load() != 1 {
		t.Errorf("presign calls = %d, want 1", fake.calls.Load())
	}
}

func TestCachedSignerPassesThroughUnknown(t *testing.T) {
	s := NewCachedSigner(&fakeSigner{}, time.Hour)
	got, err := s.Sign(context.Background(), "https://elsewhere.example.com/x.png")
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if got != "https://elsewhere.example.com/x.png" {
		t.Errorf("got %q", got)
	}

	var nilSigner *CachedSigner
	if got, _ := nilSigner.Sign(context.Background(), "s3://b/k"); got != "s3://b/k" {
		t.Errorf("nil signer changed ref: %q", got)
	}
}

type errSigner struct{}

func (errSigner) Presign(ctx context.Context, ref string, ttl time.Duration) (string, bool, error) {
	return "", true, errors.New("storage offline")
}

func TestCachedSignerPropagatesErrors(t *testing.T) {
	s := NewCachedSigner(errSigner{}, time.Hour)
	if _, err := s.SignAll(context.Background(), []string{"s3://b/k"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry("")
	a := NewKieClient(KieOptions{ID: "a", BaseURL: "http://a"})
	b := NewKieClient(KieOptions{ID: "b", BaseURL: "http://b"})
	r.Register("a", a)
	r.Register("b", b)

	if r.DefaultID() != "a" {
		t.Errorf("default = %q", r.DefaultID())
	}
	if p, err := r.Get(""); err != nil || p != Provider(a) {
		t.Errorf("Get(\"\") = %v, %v", p, err)
	}
	if p, err := r.Get("b"); err != nil || p != Provider(b) {
		t.Errorf("Get(b) = %v, %v", p, err)
	}
	if _, err := r.Get("c"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(c) err = %v", err)
	}
	if ids := r.IDs(); len(ids) != 2 || ids[0] != "a" {
		t.Errorf("IDs = %v", ids)
	}
}

func TestNormalizeStatus(t *testing.T) {
	cases := map[string]models.FrameStatus{
		"queue":       models.FrameStatusQueued,
		"Pending":     models.FrameStatusQueued,
		"in-progress": models.FrameStatusRunning,
		"PROCESSING":  models.FrameStatusRunning,
		" success ":   models.FrameStatusSucceeded,
		"DONE":        models.FrameStatusSucceeded,
		"error":       models.FrameStatusFailed,
		"cancelled":   models.FrameStatusFailed,
	}
	for in, want := range cases {
		got, ok := NormalizeStatus(in)
		if !ok || got != want {
			t.Errorf("NormalizeStatus(%q) = %s, %v; want %s", in, got, ok, want)
		}
	}
	if _, ok := NormalizeStatus("ing"); ok {
		t.Error("unknown word reported as known")
	}
	if _, ok := NormalizeStatus(""); ok {
		t.Error("empty word reported as known")
	}
}
