// Package geo resolves visitor IPs to approximate locations through ipapi.co.
package geo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/nest-haus/backend/internal/domain/session"
	"github.com/nest-haus/backend/internal/infrastructure/config"
)

const (
	cacheKeyPrefix  = "geo:ip:"
	userAgent       = "nest-haus-analytics/1.0"
	maxResponseSize = 64 * 1024
)

// Cache stores resolved locations by hashed IP.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type ipapiResponse struct {
	CountryCode string  `json:"country_code"`
	CountryName string  `json:"country_name"`
	City        string  `json:"city"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
}

// Client is a session.Locator backed by ipapi.co. Lookup failures are
// logged and reported as an unknown location.
type Client struct {
	endpoint   string
	httpClient *http.Client
	cache      Cache
	cacheTTL   time.Duration
	logger     *zap.Logger
	group      singleflight.Group
}

// NewClient creates a Client. cache may be nil.
func NewClient(cfg config.GeoConfig, cache Cache, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      cache,
		cacheTTL:   cfg.CacheTTL,
		logger:     logger,
	}
}

// HashIP is the first 16 hex characters of the IP's SHA-256. Raw IPs are never cached.
func HashIP(ip string) string {
	sum := sha256.Sum256([]byte(ip))
	return hex.EncodeToString(sum[:])[:16]
}

// Locate returns the location of ip, or nil when it cannot be determined.
func (c *Client) Locate(ctx context.Context, ip string) (*session.Location, error) {
	if !session.Locatable(ip) {
		return nil, nil
	}
	hash := HashIP(ip)
	key := cacheKeyPrefix + hash

	if c.cache != nil {
		raw, ok, err := c.cache.Get(ctx, key)
		if err != nil {
			c.logger.Warn("Geolocation cache read failed", zap.String("ip_hash", hash), zap.Error(err))
		} else if ok {
			var loc session.Location
			if err := json.Unmarshal(raw, &loc); err == nil {
				return &loc, nil
			}
		}
	}

	v, _, _ := c.group.Do(hash, func() (any, error) {
		return c.fetch(ctx, ip, hash), nil
	})
	loc, _ := v.(*session.Location)
	if loc == nil {
		return nil, nil
	}

	if c.cache != nil {
		raw, err := json.Marshal(loc)
		if err == nil {
			if err := c.cache.Set(ctx, key, raw, c.cacheTTL); err != nil {
				c.logger.Warn("Geolocation cache write failed", zap.String("ip_hash", hash), zap.Error(err))
			}
		}
	}
	return loc, nil
}

func (c *Client) fetch(ctx context.Context, ip, hash string) *session.Location {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/"+url.PathEscape(ip)+"/json/", nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Geolocation lookup failed", zap.String("ip_hash", hash), zap.Error(err))
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("Geolocation API returned non-200", zap.String("ip_hash", hash), zap.Int("status", resp.StatusCode))
		return nil
	}

	var data ipapiResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize)).Decode(&data); err != nil {
		c.logger.Warn("Geolocation response undecodable", zap.String("ip_hash", hash), zap.Error(err))
		return nil
	}
	if data.Error {
		c.logger.Warn("Geolocation API error", zap.String("ip_hash", hash), zap.String("reason", data.Reason))
		return nil
	}

	loc := &session.Location{
		Country:     orDefault(data.CountryCode, "XX"),
		City:        orDefault(data.City, "Unknown"),
		Latitude:    data.Latitude,
		Longitude:   data.Longitude,
		CountryName: orDefault(data.CountryName, "Unknown"),
	}
	c.logger.Debug("Resolved geolocation",
		zap.String("ip_hash", hash),
		zap.String("country", loc.Country),
		zap.String("city", loc.City),
	)
	return loc
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

var _ session.Locator = (*Client)(nil)
