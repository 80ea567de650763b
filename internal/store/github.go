// Package store persists the output artifacts into a versioned remote
// document store, a repository driven through the contents API. Every read
// returns the blob SHA as version token; writes are conditioned on it so a
// concurrent writer makes the update fail instead of being clobbered. The
// policy on a stale token is log-and-skip: the next scheduled run
// re-attempts with a fresh read.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	"techevents/internal/config"
	"techevents/internal/metrics"
)

// MergeFunc combines the currently stored content with the incoming one.
type MergeFunc func(current, incoming []byte) ([]byte, error)

// ErrConflict reports a stale version token on write.
var ErrConflict = errors.New("store: version token is stale")

// Store writes documents into one owner/repo/branch.
type Store struct {
	client *github.Client
	cfg    config.StoreConfig
	logger *slog.Logger
}

// New creates a store for the configured repository. Every request is
// bounded by timeout, token or not.
func New(cfg config.StoreConfig, token string, timeout time.Duration, logger *slog.Logger) *Store {
	hc := &http.Client{Timeout: timeout}
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, ts)
		hc.Timeout = timeout
	}
	return &Store{client: github.NewClient(hc), cfg: cfg, logger: logger}
}

// Get reads a document, returning its content and whether it exists.
func (s *Store) Get(ctx context.Context, path string) ([]byte, bool, error) {
	content, _, found, err := s.read(ctx, path)
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return content, true, nil
}

// Sync performs the read-modify-write cycle for one document. A missing
// document is created directly with the incoming content, no merge and no
// token. An existing one has merge applied (nil merge replaces) and is
// updated conditioned on the version token obtained by the read; a stale
// token yields ErrConflict and the write is abandoned.
func (s *Store) Sync(ctx context.Context, path string, content []byte, merge MergeFunc) error {
	current, sha, found, err := s.read(ctx, path)
	if err != nil {
		metrics.StoreWrites.WithLabelValues("error").Inc()
		return err
	}

	if !found {
		opts := &github.RepositoryContentFileOptions{
			Message: github.String("Create " + path),
			Content: content,
			Branch:  github.String(s.cfg.Branch),
		}
		if _, _, err := s.client.Repositories.CreateFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts); err != nil {
			metrics.StoreWrites.WithLabelValues("error").Inc()
			return fmt.Errorf("create %s: %w", path, err)
		}
		metrics.StoreWrites.WithLabelValues("created").Inc()
		s.logger.Info("Created file.", "path", path)
		return nil
	}

	merged := content
	if merge != nil {
		merged, err = merge(current, content)
		if err != nil {
			metrics.StoreWrites.WithLabelValues("error").Inc()
			return fmt.Errorf("merge %s: %w", path, err)
		}
	}

	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Update " + path),
		Content: merged,
		SHA:     github.String(sha),
		Branch:  github.String(s.cfg.Branch),
	}
	if _, _, err := s.client.Repositories.UpdateFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts); err != nil {
		if isConflict(err) {
			metrics.StoreWrites.WithLabelValues("conflict").Inc()
			return fmt.Errorf("update %s: %w", path, ErrConflict)
		}
		metrics.StoreWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("update %s: %w", path, err)
	}
	metrics.StoreWrites.WithLabelValues("updated").Inc()
	s.logger.Info("Updated file.", "path", path)
	return nil
}

// Delete removes a document. Deleting a missing document is a silent no-op.
func (s *Store) Delete(ctx context.Context, path string) error {
	_, sha, found, err := s.read(ctx, path)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	opts := &github.RepositoryContentFileOptions{
		Message: github.String("Delete " + path),
		SHA:     github.String(sha),
		Branch:  github.String(s.cfg.Branch),
	}
	if _, _, err := s.client.Repositories.DeleteFile(ctx, s.cfg.Owner, s.cfg.Repo, path, opts); err != nil {
		metrics.StoreWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("delete %s: %w", path, err)
	}
	metrics.StoreWrites.WithLabelValues("deleted").Inc()
	s.logger.Info("Deleted file.", "path", path)
	return nil
}

// read fetches a document and its version token. The distinguished
// "not found" outcome is reported via the found flag, not an error.
func (s *Store) read(ctx context.Context, path string) (content []byte, sha string, found bool, err error) {
	file, _, resp, err := s.client.Repositories.GetContents(ctx, s.cfg.Owner, s.cfg.Repo, path,
		&github.RepositoryContentGetOptions{Ref: s.cfg.Branch})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, "", false, nil
		}
		return nil, "", false, fmt.Errorf("get %s: %w", path, err)
	}
	if file == nil {
		return nil, "", false, fmt.Errorf("get %s: path is a directory", path)
	}
	text, err := file.GetContent()
	if err != nil {
		return nil, "", false, fmt.Errorf("decode %s: %w", path, err)
	}
	return []byte(text), file.GetSHA(), true, nil
}

func isConflict(err error) bool {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code == http.StatusConflict || code == http.StatusUnprocessableEntity
	}
	return false
}
