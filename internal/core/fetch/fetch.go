// Package fetch retrieves raw page bytes for URL extractions.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"recipeengine/internal/core/fault"
	"recipeengine/internal/logger"
)

const (
	userAgent    = "RecipeEngine/1.0 (+https://recipeengine.dev/bot)"
	maxRedirects = 5
	maxBodyBytes = 10 << 20
)

// Result is the fetched payload plus the content type the server declared.
type Result struct {
	Body        []byte
	ContentType string
}

type Service struct {
	client *http.Client
	log    *logger.Logger
}

// New builds a fetcher with the given per-request timeout.
func New(timeout time.Duration) *Service {
	return &Service{
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return fmt.Errorf("stopped after %d redirects", maxRedirects)
				}
				return nil
			},
		},
		log: logger.New("Fetch"),
	}
}

// Fetch retrieves the URL. Network errors, timeouts and non-2xx statuses all
// classify as FETCH_FAILED; the orchestrator advances to the next plan
// instead of refetching.
func (s *Service) Fetch(ctx context.Context, url string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fault.Wrap(fault.CodeFetchFailed, err, "invalid url %s", url)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,*/*;q=0.8")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		s.log.LogWarnf("fetch %s failed: %v", url, err)
		return nil, fault.Wrap(fault.CodeFetchFailed, err, "request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		s.log.LogWarnf("fetch %s returned status %d", url, resp.StatusCode)
		return nil, fault.New(fault.CodeFetchFailed, "unexpected status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fault.Wrap(fault.CodeFetchFailed, err, "reading body")
	}

	s.log.LogDebugf("fetched %s: %d bytes in %s", url, len(body), time.Since(start).Round(time.Millisecond))
	return &Result{Body: body, ContentType: resp.Header.Get("Content-Type")}, nil
}
