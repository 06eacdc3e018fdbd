package staging

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeStore records puts and signs keys deterministically.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) Put(ctx context.Context, key string, data io.Reader, mimeType string, size int64) error {
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = body
	f.puts++
	return nil
}

func (f *fakeStore) Sign(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return "https://store.test/" + key + "?signed=1", nil
}

// pngHeader is enough for content type sniffing.
var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

func imageServer(t *testing.T, body []byte, delay time.Duration) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.Header().Set("Content-Type", "image/png")
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestStagePreservesInputOrder(t *testing.T) {
	// The first source is the slowest; output order must still follow
	// input order, not completion order.
	first := imageServer(t, append(bytes.Clone(pngHeader), 'a'), 50*time.Millisecond)
	second := imageServer(t, append(bytes.Clone(pngHeader), 'b'), 0)
	third := imageServer(t, append(bytes.Clone(pngHeader), 'c'), 10*time.Millisecond)

	store := newFakeStore()
	stager := NewStager(store, nil, Config{}, nil)

	atts, err := stager.Stage(context.Background(), []string{first.URL, second.URL, third.URL})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if len(atts) != 3 {
		t.Fatalf("len = %d, want 3", len(atts))
	}
	seen := map[string]bool{}
	for i, att := range atts {
		if att.Type != "image" || att.MimeType != "image/png" {
			t.Errorf("atts[%d] = %+v", i, att)
		}
		if !strings.HasPrefix(att.URL, "https://store.test/") {
			t.Errorf("atts[%d].URL = %q, want signed store URL", i, att.URL)
		}
		if seen[att.URL] {
			t.Errorf("atts[%d].URL %q duplicated", i, att.URL)
		}
		seen[att.URL] = true
	}
	if store.puts != 3 {
		t.Errorf("puts = %d, want 3", store.puts)
	}
}

func TestStageSkipsExistingObjects(t *testing.T) {
	body := append(bytes.Clone(pngHeader), 'x')
	srv := imageServer(t, body, 0)

	store := newFakeStore()
	stager := NewStager(store, nil, Config{}, nil)

	if _, err := stager.Stage(context.Background(), []string{srv.URL}); err != nil {
		t.Fatalf("first Stage: %v", err)
	}
	atts, err := stager.Stage(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("second Stage: %v", err)
	}
	if store.puts != 1 {
		t.Errorf("puts = %d, want 1 (second stage should reuse object)", store.puts)
	}
	if len(atts) != 1 || atts[0].Size != int64(len(body)) {
		t.Errorf("atts = %+v", atts)
	}
}

func TestStageFailsWholeBatchOnError(t *testing.T) {
	good := imageServer(t, append(bytes.Clone(pngHeader), 'g'), 0)
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	t.Cleanup(bad.Close)

	stager := NewStager(newFakeStore(), nil, Config{}, nil)
	atts, err := stager.Stage(context.Background(), []string{good.URL, bad.URL})
	if err == nil {
		t.Fatal("Stage: expected error")
	}
	if atts != nil {
		t.Errorf("atts = %+v, want nil on batch failure", atts)
	}
}

func TestStageRejectsOversizedObject(t *testing.T) {
	big := append(bytes.Clone(pngHeader), bytes.Repeat([]byte{0}, 100)...)
	srv := imageServer(t, big, 0)

	stager := NewStager(newFakeStore(), nil, Config{MaxBytes: 16}, nil)
	if _, err := stager.Stage(context.Background(), []string{srv.URL}); err == nil {
		t.Fatal("Stage: expected size limit error")
	}
}

func TestStageSniffsMissingContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write(append(bytes.Clone(pngHeader), 0, 0, 0))
	}))
	t.Cleanup(srv.Close)

	stager := NewStager(newFakeStore(), nil, Config{}, nil)
	atts, err := stager.Stage(context.Background(), []string{srv.URL})
	if err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if atts[0].MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", atts[0].MimeType)
	}
}

func TestStageEmptyInput(t *testing.T) {
	stager := NewStager(newFakeStore(), nil, Config{}, nil)
	atts, err := stager.Stage(context.Background(), nil)
	if err != nil || atts != nil {
		t.Errorf("Stage(nil) = %v, %v", atts, err)
	}
}
