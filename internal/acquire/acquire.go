// Package acquire fetches source pages through the rendering proxy.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KevinLaRosa/yorimichi-workers/internal/cost"
	"github.com/KevinLaRosa/yorimichi-workers/internal/resilience"
	"github.com/KevinLaRosa/yorimichi-workers/pkg/scrapingbee"
)

// Request identifies one page to fetch.
type Request struct {
	ID           string
	RenderJS     bool
	PremiumProxy bool
}

// Response is a successfully fetched page.
type Response struct {
	ID     string
	Body   string
	Status int
}

// Acquirer fetches the content of a work item.
type Acquirer interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
}

// FetchError is a fetch that ended without usable content. Status is the
// upstream status, or 0 when the request never completed.
type FetchError struct {
	ID     string
	Status int
	Block  BlockType
	Err    error
}

func (e *FetchError) Error() string {
	switch {
	case e.Block != BlockNone:
		return fmt.Sprintf("acquire: %s blocked (%s, status %d)", e.ID, e.Block, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("acquire: %s: %v", e.ID, e.Err)
	default:
		return fmt.Sprintf("acquire: %s: status %d", e.ID, e.Status)
	}
}

func (e *FetchError) Unwrap() error { return e.Err }

// ScrapingBee acquires pages through the ScrapingBee proxy. Transient
// statuses are retried; a blocked page fetched without rendering is retried
// once with JS rendering on.
type ScrapingBee struct {
	client scrapingbee.Client
	retry  resilience.RetryConfig
	costs  *cost.Tracker
}

// NewScrapingBee creates a ScrapingBee acquirer. costs may be nil.
func NewScrapingBee(client scrapingbee.Client, retry resilience.RetryConfig, costs *cost.Tracker) *ScrapingBee {
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("scrapingbee", "fetch")
	}
	return &ScrapingBee{client: client, retry: retry, costs: costs}
}

// Fetch returns the page body. Any non-2xx outcome is a *FetchError.
func (s *ScrapingBee) Fetch(ctx context.Context, req Request) (*Response, error) {
	resp, err := s.fetch(ctx, req)
	if err != nil {
		return nil, err
	}

	if bt := DetectBlock(resp.StatusCode, resp.Header, resp.Body); bt != BlockNone {
		if req.RenderJS {
			return nil, &FetchError{ID: req.ID, Status: resp.StatusCode, Block: bt}
		}
		zap.L().Info("acquire: block page detected, retrying with js rendering",
			zap.String("id", req.ID),
			zap.String("block", string(bt)),
		)
		req.RenderJS = true
		return s.Fetch(ctx, req)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{ID: req.ID, Status: resp.StatusCode}
	}

	return &Response{ID: req.ID, Body: string(resp.Body), Status: resp.StatusCode}, nil
}

func (s *ScrapingBee) fetch(ctx context.Context, req Request) (*scrapingbee.FetchResponse, error) {
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*scrapingbee.FetchResponse, error) {
		resp, err := s.client.Fetch(ctx, scrapingbee.FetchRequest{
			URL:          req.ID,
			RenderJS:     req.RenderJS,
			PremiumProxy: req.PremiumProxy,
		})
		if err != nil {
			return nil, err
		}
		if s.costs != nil {
			s.costs.AddScrape()
		}
		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			// The proxy answers 401 itself for a bad key or exhausted credits.
			return resp, resilience.NewAuthError("scrapingbee",
				eris.Errorf("scrapingbee: status %d: %s", resp.StatusCode, snippet(resp.Body)), resp.StatusCode)
		case resilience.IsTransientHTTPStatus(resp.StatusCode):
			return resp, resilience.NewTransientError(
				eris.Errorf("scrapingbee: status %d", resp.StatusCode), resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		return nil, &FetchError{ID: req.ID, Status: statusOf(err), Err: err}
	}
	return resp, nil
}

func statusOf(err error) int {
	var te *resilience.TransientError
	if errors.As(err, &te) {
		return te.StatusCode
	}
	var ae *resilience.AuthError
	if errors.As(err, &ae) {
		return ae.StatusCode
	}
	return 0
}

func snippet(body []byte) string {
	if len(body) > 120 {
		body = body[:120]
	}
	return strings.TrimSpace(string(body))
}
