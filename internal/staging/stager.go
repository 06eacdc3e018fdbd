// Package staging rehosts caller-supplied media into the object store
// before prompt assembly. Source URLs are fetched once, content addressed
// by digest, and exchanged for time-limited retrieval links so that
// downstream components never see the caller's origin servers.
package staging

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quailsgpt/quailsgpt/pkg/models"
)

// ObjectStore is the blob backend the stager writes into.
type ObjectStore interface {
	// Exists reports whether an object is already stored under key.
	Exists(ctx context.Context, key string) (bool, error)

	// Put stores the object under key with the given content type.
	Put(ctx context.Context, key string, data io.Reader, mimeType string, size int64) error

	// Sign returns a time-limited retrieval URL for key.
	Sign(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Config tunes the stager.
type Config struct {
	// MaxBytes caps the size of a single fetched object.
	MaxBytes int64

	// SignTTL is the lifetime of issued retrieval links.
	SignTTL time.Duration

	// FetchTimeout bounds a single source fetch.
	FetchTimeout time.Duration
}

// Stager fetches source media and rehosts it in an ObjectStore.
type Stager struct {
	store  ObjectStore
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewStager creates a stager over the given store. A nil client uses a
// default with the configured fetch timeout.
func NewStager(store ObjectStore, client *http.Client, cfg Config, logger *slog.Logger) *Stager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 20 << 20
	}
	if cfg.SignTTL <= 0 {
		cfg.SignTTL = 15 * time.Minute
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Stager{store: store, client: client, cfg: cfg, logger: logger}
}

// Stage rehosts every source URL concurrently and returns one attachment
// per input, in input order. Any single failure fails the whole batch;
// nothing partial is reported to the caller.
func (s *Stager) Stage(ctx context.Context, urls []string) ([]models.Attachment, error) {
	if len(urls) == 0 {
		return nil, nil
	}

	attachments := make([]models.Attachment, len(urls))
	g, ctx := errgroup.WithContext(ctx)
	for i, url := range urls {
		g.Go(func() error {
			att, err := s.stageOne(ctx, url)
			if err != nil {
				return fmt.Errorf("stage %q: %w", url, err)
			}
			attachments[i] = att
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func (s *Stager) stageOne(ctx context.Context, url string) (models.Attachment, error) {
	data, mimeType, err := s.fetch(ctx, url)
	if err != nil {
		return models.Attachment{}, err
	}

	digest := sha256.Sum256(data)
	key := hex.EncodeToString(digest[:]) + extensionFor(mimeType)

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("check object: %w", err)
	}
	if !exists {
		if err := s.store.Put(ctx, key, bytes.NewReader(data), mimeType, int64(len(data))); err != nil {
			return models.Attachment{}, fmt.Errorf("store object: %w", err)
		}
		s.logger.Debug("staged media", "key", key, "bytes", len(data), "mime_type", mimeType)
	}

	signed, err := s.store.Sign(ctx, key, s.cfg.SignTTL)
	if err != nil {
		return models.Attachment{}, fmt.Errorf("sign object: %w", err)
	}

	return models.Attachment{
		Type:     "image",
		URL:      signed,
		MimeType: mimeType,
		Size:     int64(len(data)),
	}, nil
}

func (s *Stager) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("fetch: unexpected status %d", resp.StatusCode)
	}

	// Read one byte past the cap to distinguish at-limit from over-limit.
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.cfg.MaxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(data)) > s.cfg.MaxBytes {
		return nil, "", fmt.Errorf("object exceeds %d byte limit", s.cfg.MaxBytes)
	}

	mimeType := resp.Header.Get("Content-Type")
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	return data, mimeType, nil
}

func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ""
	}
}
