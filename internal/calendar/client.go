// Package calendar fetches a user's upcoming events from the provider's
// REST API over a bounded day window.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Areeb3176/schedule-agent/internal/domain"
)

// maxEvents caps one window fetch; the provider orders results
// chronologically and expands recurring events into single instances.
const maxEvents = 50

// TokenSource resolves a currently-valid credential for a user.
type TokenSource interface {
	GetValidCredential(ctx context.Context, userID int64) (domain.Credential, error)
}

// Client is the event source adapter.
type Client struct {
	tokens  TokenSource
	baseURL string
	loc     *time.Location
	log     *zap.Logger
	client  *http.Client
	now     func() time.Time
}

// New creates a calendar client. loc is the reference timezone used to
// anchor fetch windows at local start-of-day.
func New(tokens TokenSource, baseURL string, loc *time.Location, log *zap.Logger) *Client {
	return &Client{
		tokens:  tokens,
		baseURL: baseURL,
		loc:     loc,
		log:     log,
		client:  &http.Client{Timeout: 20 * time.Second},
		now:     time.Now,
	}
}

// FetchEvents returns the user's events in [start of today, +windowDays) in
// the reference timezone. A failure is terminal for this attempt; there is
// no retry here.
func (c *Client) FetchEvents(ctx context.Context, userID int64, windowDays int) ([]domain.Event, error) {
	cred, err := c.tokens.GetValidCredential(ctx, userID)
	if err != nil {
		return nil, &domain.FetchError{Reason: domain.FetchNoValidCredential, Err: err}
	}

	localNow := c.now().In(c.loc)
	start := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, c.loc)
	end := start.AddDate(0, 0, windowDays)

	// The provider wants UTC wire times with a Z suffix.
	const wire = "2006-01-02T15:04:05Z"
	q := url.Values{
		"maxResults":   {strconv.Itoa(maxEvents)},
		"orderBy":      {"startTime"},
		"singleEvents": {"true"},
		"timeMin":      {start.UTC().Format(wire)},
		"timeMax":      {end.UTC().Format(wire)},
	}
	reqURL := c.baseURL + "/calendars/primary/events?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &domain.FetchError{Reason: domain.FetchTransportError, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+cred.AccessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.FetchError{Reason: domain.FetchTransportError, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body := readBounded(resp)
		c.log.Warn("calendar provider error",
			zap.Int64("userID", userID),
			zap.Int("status", resp.StatusCode),
		)
		return nil, &domain.FetchError{
			Reason: domain.FetchProviderError,
			Status: resp.StatusCode,
			Body:   body,
		}
	}

	var payload struct {
		Items []domain.Event `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &domain.FetchError{Reason: domain.FetchTransportError, Err: fmt.Errorf("decode events: %w", err)}
	}

	c.log.Debug("events fetched",
		zap.Int64("userID", userID),
		zap.Int("count", len(payload.Items)),
		zap.Int("windowDays", windowDays),
	)
	return payload.Items, nil
}

func readBounded(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return strings.TrimSpace(string(body))
}
