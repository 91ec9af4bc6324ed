package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/example/autolead/internal/models"
	"github.com/example/autolead/internal/pricing"
)

const (
	tokenRefreshLeeway = 30 * time.Second
	catalogPageSize    = 100
	catalogMaxPages    = 500
)

// ErrCatalogNotConfigured is returned when the feed URL or key is missing.
var ErrCatalogNotConfigured = errors.New("catalog feed is not configured")

type catalogAuthRequest struct {
	SecretToken string `json:"secret_token"`
}

type catalogAuthResponse struct {
	Data struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	} `json:"data"`
}

// FeedListing is one car as the third-party feed publishes it.
type FeedListing struct {
	ID               string `json:"id"`
	Brand            string `json:"brand"`
	Model            string `json:"model"`
	Version          string `json:"version"`
	Year             int    `json:"year"`
	Price            int64  `json:"price"`
	ImageURL         string `json:"image_url"`
	Title            string `json:"title"`
	RegistrationType string `json:"registration_type"`
	URL              string `json:"url"`
}

type feedPage struct {
	Data     []FeedListing `json:"data"`
	NextPage int           `json:"next_page"`
}

// CatalogService pulls the car feed, caching the access token between calls.
type CatalogService struct {
	baseURL string
	secret  string
	client  *http.Client

	mu          sync.RWMutex
	token       string
	tokenExpiry time.Time
}

func NewCatalogService(baseURL, secret string) *CatalogService {
	return &CatalogService{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		secret:  strings.TrimSpace(secret),
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

func (s *CatalogService) cachedToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentTokenLocked()
}

func (s *CatalogService) currentTokenLocked() string {
	if s.token == "" {
		return ""
	}
	if !s.tokenExpiry.IsZero() && time.Now().Add(tokenRefreshLeeway).After(s.tokenExpiry) {
		return ""
	}
	return s.token
}

func (s *CatalogService) accessToken(ctx context.Context, force bool) (string, error) {
	if !force {
		if t := s.cachedToken(); t != "" {
			return t, nil
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another goroutine may have refreshed while we waited for the lock.
	if !force {
		if t := s.currentTokenLocked(); t != "" {
			return t, nil
		}
	}

	body, err := json.Marshal(catalogAuthRequest{SecretToken: s.secret})
	if err != nil {
		return "", fmt.Errorf("marshal catalog auth payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create catalog auth request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute catalog auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read catalog auth response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("catalog auth failed: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var authResp catalogAuthResponse
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return "", fmt.Errorf("unmarshal catalog auth response: %w", err)
	}
	if authResp.Data.AccessToken == "" {
		return "", errors.New("catalog auth response missing access_token")
	}

	s.token = authResp.Data.AccessToken
	if authResp.Data.ExpiresIn > 0 {
		s.tokenExpiry = time.Now().Add(time.Duration(authResp.Data.ExpiresIn) * time.Second)
	} else {
		s.tokenExpiry = time.Now().Add(5 * time.Minute)
	}
	return s.token, nil
}

func (s *CatalogService) fetchPage(ctx context.Context, page int) (*feedPage, error) {
	u, err := url.Parse(s.baseURL + "/listings")
	if err != nil {
		return nil, fmt.Errorf("parse catalog URL: %w", err)
	}
	q := u.Query()
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(catalogPageSize))
	u.RawQuery = q.Encode()

	do := func(token string) (int, []byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return 0, nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := s.client.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("execute request: %w", err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return 0, nil, fmt.Errorf("read response: %w", err)
		}
		return resp.StatusCode, body, nil
	}

	token, err := s.accessToken(ctx, false)
	if err != nil {
		return nil, err
	}
	status, body, err := do(token)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		// Token likely expired; refresh and retry once.
		if token, err = s.accessToken(ctx, true); err != nil {
			return nil, err
		}
		if status, body, err = do(token); err != nil {
			return nil, err
		}
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("catalog page %d: status %d", page, status)
	}

	var p feedPage
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decode catalog page %d: %w", page, err)
	}
	return &p, nil
}

// FetchAll walks every feed page.
func (s *CatalogService) FetchAll(ctx context.Context) ([]FeedListing, error) {
	if s.baseURL == "" || s.secret == "" {
		return nil, ErrCatalogNotConfigured
	}

	var out []FeedListing
	page := 1
	for i := 0; i < catalogMaxPages && page > 0; i++ {
		p, err := s.fetchPage(ctx, page)
		if err != nil {
			return nil, err
		}
		out = append(out, p.Data...)
		if p.NextPage <= page {
			break
		}
		page = p.NextPage
	}
	return out, nil
}

// CatalogFeed is what CatalogSyncer reads from.
type CatalogFeed interface {
	FetchAll(ctx context.Context) ([]FeedListing, error)
}

// CarStore is what CatalogSyncer writes to.
type CarStore interface {
	Upsert(ctx context.Context, car *models.Car) error
	DeleteUncheckedSince(ctx context.Context, since time.Time) (int64, error)
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Seen     int           `json:"seen"`
	Upserted int           `json:"upserted"`
	Skipped  int           `json:"skipped"`
	Failed   int           `json:"failed"`
	Deleted  int64         `json:"deleted"`
	Took     time.Duration `json:"took_ns"`
}

// CatalogSyncer mirrors the feed into the cars table.
type CatalogSyncer struct {
	feed             CatalogFeed
	cars             CarStore
	registrationType string
	minYear          int
	log              *zap.Logger
	now              func() time.Time
}

func NewCatalogSyncer(feed CatalogFeed, cars CarStore, registrationType string, minYear int, log *zap.Logger) *CatalogSyncer {
	return &CatalogSyncer{
		feed:             feed,
		cars:             cars,
		registrationType: strings.TrimSpace(registrationType),
		minYear:          minYear,
		log:              log,
		now:              time.Now,
	}
}

func (s *CatalogSyncer) accepts(l FeedListing) bool {
	if l.ID == "" || l.Price < pricing.MinCarPrice {
		return false
	}
	if s.registrationType != "" && !strings.EqualFold(strings.TrimSpace(l.RegistrationType), s.registrationType) {
		return false
	}
	return l.Year >= s.minYear
}

// Sync upserts accepted listings and deletes rows the feed no longer has. Rows are only
// deleted after a complete, error-free pass.
func (s *CatalogSyncer) Sync(ctx context.Context) (SyncResult, error) {
	started := s.now().UTC()
	var res SyncResult

	listings, err := s.feed.FetchAll(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch catalog: %w", err)
	}
	res.Seen = len(listings)

	for _, l := range listings {
		if !s.accepts(l) {
			res.Skipped++
			continue
		}
		car := &models.Car{
			ExternalID:       l.ID,
			Brand:            strings.TrimSpace(l.Brand),
			Model:            strings.TrimSpace(l.Model),
			Version:          strings.TrimSpace(l.Version),
			Year:             l.Year,
			Price:            l.Price,
			ImageURL:         l.ImageURL,
			Title:            l.Title,
			RegistrationType: l.RegistrationType,
			URL:              l.URL,
			LastChecked:      started,
		}
		if err := s.cars.Upsert(ctx, car); err != nil {
			res.Failed++
			s.log.Warn("catalog: upsert failed", zap.String("external_id", l.ID), zap.Error(err))
			continue
		}
		res.Upserted++
	}

	if res.Failed == 0 {
		deleted, err := s.cars.DeleteUncheckedSince(ctx, started)
		if err != nil {
			return res, fmt.Errorf("prune catalog: %w", err)
		}
		res.Deleted = deleted
	}

	res.Took = s.now().UTC().Sub(started)
	s.log.Info("catalog: sync finished",
		zap.Int("seen", res.Seen),
		zap.Int("upserted", res.Upserted),
		zap.Int("skipped", res.Skipped),
		zap.Int("failed", res.Failed),
		zap.Int64("deleted", res.Deleted),
	)
	return res, nil
}
