// Package images resolves clean image paths to mirror URLs for the site.
package images

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/nest-haus/backend/internal/domain/imagesync"
	"github.com/nest-haus/backend/internal/domain/shared"
	"github.com/nest-haus/backend/internal/infrastructure/cache"
)

const (
	// CacheTTL is how long a resolved URL is served from cache.
	CacheTTL = time.Hour
	// ProbeTimeout bounds the extension probing of one path.
	ProbeTimeout = 15 * time.Second
	// MaxBatch is the largest batch request accepted.
	MaxBatch = 20

	cachePrefix = "image:url:"
	imagePrefix = "images/"
)

// Extensions are probed in order; the bare path comes first.
var Extensions = []string{"", ".jpg", ".jpeg", ".png", ".webp", ".avif", ".mp4", ".webm", ".mov"}

// Resolution kinds.
const (
	KindCached      = "cached"
	KindBlob        = "blob"
	KindPlaceholder = "placeholder"
	KindFallback    = "fallback"
)

var (
	ErrNoPath        = shared.ErrInvalidInput.WithMessage("No path provided")
	ErrBatchTooLarge = shared.ErrInvalidInput.WithMessage("Batch size too large (max 20)")
)

// Mirror is the read side of the blob store.
type Mirror interface {
	Exists(ctx context.Context, key string) (bool, error)
	URL(key string) string
}

// Resolution is a resolved path.
type Resolution struct {
	URL   string `json:"url"`
	Path  string `json:"path,omitempty"`
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// Service resolves image paths.
type Service struct {
	mirror  Mirror
	cache   cache.Store
	catalog imagesync.CatalogStore
	logger  *zap.Logger
	timeout time.Duration
}

// NewService creates an image service. cache and catalog may be nil.
func NewService(mirror Mirror, store cache.Store, catalog imagesync.CatalogStore, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		mirror:  mirror,
		cache:   store,
		catalog: catalog,
		logger:  logger.Named("images"),
		timeout: ProbeTimeout,
	}
}

// PlaceholderURL is returned for paths that are not in the mirror.
func PlaceholderURL(path string) string {
	return "/api/placeholder/1200/800?text=Image%20Not%20Found&style=nest&path=" + url.QueryEscape(path)
}

// FallbackURL is returned when probing failed.
func FallbackURL(timeout bool) string {
	text := "Error"
	if timeout {
		text = "Timeout"
	}
	return "/api/placeholder/400/300?text=" + text + "&style=nest&bgColor=%23ffeeee&textColor=%23cc0000"
}

// Resolve finds the mirror URL for path. It never fails for a non-empty
// path: unknown paths get a placeholder and probe errors a fallback.
func (s *Service) Resolve(ctx context.Context, path string) (*Resolution, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, ErrNoPath
	}
	if u, ok := s.cached(ctx, path); ok {
		return &Resolution{URL: u, Path: path, Type: KindCached}, nil
	}

	key, err := s.probe(ctx, path)
	switch {
	case err != nil:
		timeout := errors.Is(err, context.DeadlineExceeded)
		if !timeout {
			s.logger.Warn("Image lookup failed", zap.String("path", path), zap.Error(err))
		}
		return &Resolution{URL: FallbackURL(timeout), Path: path, Type: KindFallback, Error: err.Error()}, nil
	case key == "":
		s.logger.Debug("Image not found", zap.String("path", path))
		return &Resolution{URL: PlaceholderURL(path), Path: path, Type: KindPlaceholder}, nil
	}

	u := s.mirror.URL(key)
	if s.cache != nil {
		if err := s.cache.Set(ctx, cachePrefix+path, []byte(u), CacheTTL); err != nil {
			s.logger.Debug("Image cache write failed", zap.Error(err))
		}
	}
	return &Resolution{URL: u, Path: path, Type: KindBlob}, nil
}

func (s *Service) cached(ctx context.Context, path string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	raw, ok, err := s.cache.Get(ctx, cachePrefix+path)
	if err != nil || !ok {
		return "", false
	}
	return string(raw), true
}

// probe tries each extension under images/ and returns the first existing key.
func (s *Service) probe(ctx context.Context, path string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	base := path
	if !strings.HasPrefix(base, imagePrefix) {
		base = imagePrefix + strings.TrimPrefix(base, "/")
	}
	var lastErr error
	for _, ext := range Extensions {
		ok, err := s.mirror.Exists(ctx, base+ext)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			lastErr = err
			continue
		}
		if ok {
			return base + ext, nil
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", nil
}

// ResolveBatch resolves up to MaxBatch paths concurrently.
func (s *Service) ResolveBatch(ctx context.Context, paths []string) (map[string]*Resolution, error) {
	if len(paths) == 0 {
		return nil, ErrNoPath.WithMessage("No paths provided")
	}
	if len(paths) > MaxBatch {
		return nil, ErrBatchTooLarge
	}
	results := make([]*Resolution, len(paths))
	var g errgroup.Group
	for i, p := range paths {
		g.Go(func() error {
			res, err := s.Resolve(ctx, p)
			if err != nil {
				res = &Resolution{URL: FallbackURL(false), Type: KindFallback, Error: err.Error()}
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]*Resolution, len(paths))
	for i, p := range paths {
		r := *results[i]
		r.Path = ""
		out[p] = &r
	}
	return out, nil
}

// Catalog returns the image constants catalog.
func (s *Service) Catalog(ctx context.Context) (imagesync.Catalog, error) {
	if s.catalog == nil {
		return imagesync.Catalog{}, nil
	}
	return s.catalog.Load(ctx)
}
