package store

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-github/v62/github"

	"techevents/internal/config"
)

// fakeRepo is an in-memory contents API good enough for the synchronizer:
// it serves file reads, accepts creates, and rejects updates whose sha does
// not match the stored one.
type fakeRepo struct {
	mu    sync.Mutex
	files map[string]string // path -> content
	shas  map[string]string // path -> current sha
	next  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{files: make(map[string]string), shas: make(map[string]string)}
}

func (f *fakeRepo) bump(path string) string {
	f.next++
	sha := fmt.Sprintf("sha-%d", f.next)
	f.shas[path] = sha
	return sha
}

func (f *fakeRepo) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		const prefix = "/repos/acme/site/contents/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			t.Errorf("unexpected path: %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		path := strings.TrimPrefix(r.URL.Path, prefix)

		f.mu.Lock()
		defer f.mu.Unlock()

		switch r.Method {
		case http.MethodGet:
			content, ok := f.files[path]
			if !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"type":     "file",
				"name":     path,
				"path":     path,
				"encoding": "base64",
				"content":  base64.StdEncoding.EncodeToString([]byte(content)),
				"sha":      f.shas[path],
			})
		case http.MethodPut:
			var req struct {
				Content []byte `json:"content"`
				SHA     string `json:"sha"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			if current, exists := f.shas[path]; exists {
				if req.SHA != current {
					http.Error(w, `{"message":"does not match"}`, http.StatusConflict)
					return
				}
			} else if req.SHA != "" {
				http.Error(w, `{"message":"sha provided for new file"}`, http.StatusUnprocessableEntity)
				return
			}
			f.files[path] = string(req.Content)
			sha := f.bump(path)
			json.NewEncoder(w).Encode(map[string]any{"content": map[string]any{"path": path, "sha": sha}})
		case http.MethodDelete:
			var req struct {
				SHA string `json:"sha"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if _, ok := f.files[path]; !ok {
				http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
				return
			}
			delete(f.files, path)
			delete(f.shas, path)
			fmt.Fprint(w, `{}`)
		default:
			http.Error(w, "method", http.StatusMethodNotAllowed)
		}
	})
}

func TestNewBoundsRequests(t *testing.T) {
	for _, token := range []string{"", "secret"} {
		s := New(config.StoreConfig{Owner: "acme", Repo: "site"}, token, 200*time.Millisecond, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if got := s.client.Client().Timeout; got != 200*time.Millisecond {
			t.Errorf("token %q: client timeout = %v, want 200ms", token, got)
		}
	}
}

func newTestStore(t *testing.T, srv *httptest.Server) *Store {
	t.Helper()
	s := New(config.StoreConfig{Owner: "acme", Repo: "site", Branch: "main"}, "", 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.client = github.NewClient(srv.Client())
	base, err := url.Parse(srv.URL + "/")
	if err != nil {
		t.Fatal(err)
	}
	s.client.BaseURL = base
	return s
}

func TestSyncCreatesMissingDocument(t *testing.T) {
	repo := newFakeRepo()
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()
	s := newTestStore(t, srv)

	if err := s.Sync(context.Background(), "events.json", []byte(`[]`), nil); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if repo.files["events.json"] != "[]" {
		t.Errorf("file content = %q", repo.files["events.json"])
	}
}

func TestSyncUpdatesWithMerge(t *testing.T) {
	repo := newFakeRepo()
	repo.files["events.json"] = "old"
	repo.bump("events.json")
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()
	s := newTestStore(t, srv)

	merge := func(current, incoming []byte) ([]byte, error) {
		return []byte(string(incoming) + "+" + string(current)), nil
	}
	if err := s.Sync(context.Background(), "events.json", []byte("new"), merge); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	if repo.files["events.json"] != "new+old" {
		t.Errorf("merged content = %q", repo.files["events.json"])
	}
}

func TestSyncStaleTokenIsConflict(t *testing.T) {
	repo := newFakeRepo()
	repo.files["events.json"] = "old"
	repo.bump("events.json")
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()
	s := newTestStore(t, srv)

	// A concurrent writer bumps the sha between our read and write.
	merge := func(current, incoming []byte) ([]byte, error) {
		repo.mu.Lock()
		repo.bump("events.json")
		repo.mu.Unlock()
		return incoming, nil
	}
	err := s.Sync(context.Background(), "events.json", []byte("mine"), merge)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if repo.files["events.json"] != "old" {
		t.Errorf("stale write must not clobber: %q", repo.files["events.json"])
	}
}

func TestDelete(t *testing.T) {
	repo := newFakeRepo()
	repo.files["feeds/lund.xml"] = "<rss/>"
	repo.bump("feeds/lund.xml")
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()
	s := newTestStore(t, srv)

	if err := s.Delete(context.Background(), "feeds/lund.xml"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, ok := repo.files["feeds/lund.xml"]; ok {
		t.Error("file still present")
	}

	// Deleting a missing document is a silent no-op.
	if err := s.Delete(context.Background(), "feeds/gone.xml"); err != nil {
		t.Fatalf("Delete() on missing file: %v", err)
	}
}

func TestGet(t *testing.T) {
	repo := newFakeRepo()
	repo.files["events.json"] = `[{"link":"a"}]`
	repo.bump("events.json")
	srv := httptest.NewServer(repo.handler(t))
	defer srv.Close()
	s := newTestStore(t, srv)

	content, found, err := s.Get(context.Background(), "events.json")
	if err != nil || !found {
		t.Fatalf("Get() = %v, %v", found, err)
	}
	if string(content) != `[{"link":"a"}]` {
		t.Errorf("content = %q", content)
	}

	_, found, err = s.Get(context.Background(), "missing.json")
	if err != nil {
		t.Fatalf("Get() missing: %v", err)
	}
	if found {
		t.Error("missing file reported as found")
	}
}
