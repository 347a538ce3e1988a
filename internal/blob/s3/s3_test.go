package s3blob

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// fakeS3 stores PUT bodies by path and answers HEAD from them.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodHead:
		if _, ok := f.objects[r.URL.Path]; !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, prefix string) (*Client, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: make(map[string][]byte)}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), ClientConfig{
		Endpoint:       srv.URL,
		Region:         "us-east-1",
		Bucket:         "journal",
		Prefix:         prefix,
		AccessKey:      "test",
		SecretKey:      "test",
		ForcePathStyle: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	return c, fake
}

func TestNewRequiresBucketAndRegion(t *testing.T) {
	if _, err := New(context.Background(), ClientConfig{Region: "us-east-1"}); err == nil {
		t.Fatal("expected missing bucket error")
	}
	if _, err := New(context.Background(), ClientConfig{Bucket: "b"}); err == nil {
		t.Fatal("expected missing region error")
	}
}

func TestKey(t *testing.T) {
	c := &Client{prefix: "journal"}
	if got := c.Key("/2026/01/trades.jsonl"); got != "journal/2026/01/trades.jsonl" {
		t.Fatalf("key = %s", got)
	}
	c.prefix = ""
	if got := c.Key("trades.jsonl"); got != "trades.jsonl" {
		t.Fatalf("key = %s", got)
	}
}

func TestNormaliseEndpoint(t *testing.T) {
	tests := map[string]struct {
		in   string
		ssl  bool
		want string
	}{
		"scheme kept": {"http://minio:9000", true, "http://minio:9000"},
		"https added": {"s3.example.com", true, "https://s3.example.com"},
		"http added":  {"minio:9000", false, "http://minio:9000"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			if got := normaliseEndpoint(tt.in, tt.ssl); got != tt.want {
				t.Fatalf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWriterPutAndExists(t *testing.T) {
	c, fake := newTestClient(t, "archive")
	w := NewWriter(c)
	ctx := context.Background()

	ok, err := w.Exists(ctx, "trades_20260101.jsonl")
	if err != nil || ok {
		t.Fatalf("exists before put = %v, %v", ok, err)
	}

	payload := []byte(`{"id":"t1"}` + "\n")
	if err := w.Put(ctx, "trades_20260101.jsonl", bytes.NewReader(payload), "application/x-ndjson"); err != nil {
		t.Fatalf("put: %v", err)
	}

	fake.mu.Lock()
	body, stored := fake.objects["/journal/archive/trades_20260101.jsonl"]
	fake.mu.Unlock()
	if !stored {
		t.Fatalf("object not stored, have %v", fake.objects)
	}
	if !strings.Contains(string(body), `{"id":"t1"}`) {
		t.Fatalf("body = %q", body)
	}

	ok, err = w.Exists(ctx, "trades_20260101.jsonl")
	if err != nil || !ok {
		t.Fatalf("exists after put = %v, %v", ok, err)
	}
}
