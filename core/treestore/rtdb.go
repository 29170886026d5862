package treestore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"store-migrator/core/errs"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

var rtdbScopes = []string{
	"https://www.googleapis.com/auth/firebase.database",
	"https://www.googleapis.com/auth/userinfo.email",
}

// RTDBStore reads a Firebase Realtime Database through its REST API.
type RTDBStore struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
}

// RTDBOption configures an RTDBStore.
type RTDBOption func(*RTDBStore)

// WithHTTPClient replaces the authenticated client.
func WithHTTPClient(c *http.Client) RTDBOption {
	return func(s *RTDBStore) { s.httpClient = c }
}

// NewRTDBStore builds a REST reader authenticated with Google credentials.
func NewRTDBStore(ctx context.Context, cfg Config, opts ...RTDBOption) (*RTDBStore, error) {
	if cfg.URL == "" {
		return nil, errs.FatalConfigf("treestore", "%w: source.url", errs.ErrMissingConfig)
	}
	if _, err := url.ParseRequestURI(cfg.URL); err != nil {
		return nil, errs.FatalConfigf("treestore", "invalid source.url %q: %v", cfg.URL, err)
	}

	s := &RTDBStore{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		maxRetries: cfg.MaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.httpClient == nil {
		client, err := googleClient(ctx, cfg.CredentialsFile)
		if err != nil {
			return nil, errs.FatalConfig("treestore", err)
		}
		s.httpClient = client
	}
	if cfg.TimeoutSeconds > 0 {
		s.httpClient.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	return s, nil
}

func googleClient(ctx context.Context, credentialsFile string) (*http.Client, error) {
	if credentialsFile == "" {
		client, err := google.DefaultClient(ctx, rtdbScopes...)
		if err != nil {
			return nil, fmt.Errorf("failed to load default credentials: %w", err)
		}
		return client, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, rtdbScopes...)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return oauth2.NewClient(ctx, creds.TokenSource), nil
}

// ReadSubtree fetches path as JSON. Transient failures are retried.
func (s *RTDBStore) ReadSubtree(ctx context.Context, path []string) (any, error) {
	endpoint := s.endpoint(path)

	var value any
	op := func() error {
		v, err := s.fetch(ctx, endpoint)
		if err != nil {
			if !errs.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		value = v
		return nil
	}

	retries := s.maxRetries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return nil, err
	}
	return value, nil
}

func (s *RTDBStore) endpoint(path []string) string {
	escaped := make([]string, len(path))
	for i, seg := range path {
		escaped[i] = url.PathEscape(seg)
	}
	return s.baseURL + "/" + strings.Join(escaped, "/") + ".json"
}

func (s *RTDBStore) fetch(ctx context.Context, endpoint string) (any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errs.Transient("read "+endpoint, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		return decodeTree(resp.Body)
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return nil, errs.Transient("read "+endpoint, fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return nil, errs.FatalConfig("read "+endpoint, fmt.Errorf("status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("read %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
}
