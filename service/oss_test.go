package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CreativeStudio-server/config"
)

func newTestStore(t *testing.T, domain string) *ObjectStore {
	t.Helper()
	s, err := NewObjectStore(config.MinIOConfig{
		Endpoint:  "minio.internal:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "frames",
		Region:    "us-east-1",
		Domain:    domain,
	}, nil)
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}
	return s
}

func TestParseRef(t *testing.T) {
	s := newTestStore(t, "https://cdn.example.com/media")
	cases := []struct {
		ref    string
		bucket string
		key    string
		ok     bool
	}{
		{"s3://frames/projects/p/a.png", "frames", "projects/p/a.png", true},
		{"minio://other/b.png", "other", "b.png", true},
		{"https://cdn.example.com/media/projects/p/c.png", "frames", "projects/p/c.png", true},
		{"http://minio.internal:9000/frames/d.png", "frames", "d.png", true},
		{"https://cdn.example.com/elsewhere/c.png", "", "", false},
		{"https://provider.example.com/tmp/1.png", "", "", false},
		{"s3://frames/", "", "", false},
		{"minio://frames", "", "", false},
		{"https://cdn.example.com/media/", "", "", false},
		{"not a url", "", "", false},
	}
	for _, tc := range cases {
		bucket, key, ok := s.parseRef(tc.ref)
		if ok != tc.ok || bucket != tc.bucket || key != tc.key {
			t.Errorf("parseRef(%q) = %q, %q, %v", tc.ref, bucket, key, ok)
		}
	}
}

func TestPresignRecognizesStorageRefs(t *testing.T) {
	s := newTestStore(t, "")
	signed, ok, err := s.Presign(context.Background(), "minio://frames/projects/p/a.png", time.Hour)
	if err != nil || !ok {
		t.Fatalf("Presign = %v, %v", ok, err)
	}
	if !strings.Contains(signed, "X-Amz-Signature=") || !strings.Contains(signed, "/frames/projects/p/a.png") {
		t.Fatalf("signed = %q", signed)
	}
	if _, ok, err := s.Presign(context.Background(), "https://provider.example.com/x.png", time.Hour); ok || err != nil {
		t.Fatalf("foreign url recognized: %v, %v", ok, err)
	}
}

func TestObjectURL(t *testing.T) {
	if got := newTestStore(t, "").ObjectURL("a/b.png"); got != "minio://frames/a/b.png" {
		t.Errorf("ObjectURL = %q", got)
	}
	if got := newTestStore(t, "https://cdn.example.com/media/").ObjectURL("a/b.png"); got != "https://cdn.example.com/media/a/b.png" {
		t.Errorf("ObjectURL = %q", got)
	}
}

func TestHTTPFetcher(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("frame-bytes"))
	}))
	defer ts.Close()

	f := NewHTTPFetcher(time.Second)
	data, err := f.Fetch(context.Background(), ts.URL+"/ok")
	if err != nil || string(data) != "frame-bytes" {
		t.Fatalf("Fetch = %q, %v", data, err)
	}
	if _, err := f.Fetch(context.Background(), ts.URL+"/missing"); err == nil {
		t.Fatal("expected error for 404")
	}

	f.maxBytes = 4
	if _, err := f.Fetch(context.Background(), ts.URL+"/ok"); err == nil {
		t.Fatal("expected size limit error")
	}
}
