// Package calendar provides the agent calendar provider client.
package calendar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"estatebot_backend/platform/config"
	"estatebot_backend/platform/logger"

	"github.com/google/uuid"
)

// Client is the calendar port consumed by the availability matcher and the
// booking manager.
type Client interface {
	CreateEvent(ctx context.Context, agentID uuid.UUID, start, end time.Time, metadata map[string]string) (string, error)
	CheckFreeBusy(ctx context.Context, agentID uuid.UUID, start, end time.Time) (bool, error)
	UpdateEvent(ctx context.Context, eventID string, start, end time.Time) error
	DeleteEvent(ctx context.Context, eventID string) error
}

const (
	retryAttempts  = 3
	retryBaseDelay = 500 * time.Millisecond
	retryMaxDelay  = 4 * time.Second
)

type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

func NewHTTPClient(cfg config.CalendarConfig, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.GetCalendarURL(), "/"),
		apiKey:  cfg.GetCalendarKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type createEventRequest struct {
	AgentID  string            `json:"agentId"`
	Start    time.Time         `json:"start"`
	End      time.Time         `json:"end"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

type createEventResponse struct {
	EventID string `json:"eventId"`
}

type freeBusyResponse struct {
	Busy bool `json:"busy"`
}

func (c *HTTPClient) CreateEvent(ctx context.Context, agentID uuid.UUID, start, end time.Time, metadata map[string]string) (string, error) {
	body := createEventRequest{AgentID: agentID.String(), Start: start, End: end, Metadata: metadata}

	var out createEventResponse
	if err := c.do(ctx, http.MethodPost, "/events", body, &out); err != nil {
		return "", err
	}
	return out.EventID, nil
}

func (c *HTTPClient) CheckFreeBusy(ctx context.Context, agentID uuid.UUID, start, end time.Time) (bool, error) {
	path := fmt.Sprintf("/freebusy?agentId=%s&start=%s&end=%s",
		agentID.String(), start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	var out freeBusyResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.Busy, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, eventID string, start, end time.Time) error {
	body := map[string]time.Time{"start": start, "end": end}
	return c.do(ctx, http.MethodPut, "/events/"+eventID, body, nil)
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, eventID string) error {
	return c.do(ctx, http.MethodDelete, "/events/"+eventID, nil, nil)
}

// do performs one request with bounded retries. Network errors and 5xx
// responses are retried with capped exponential backoff; 4xx responses fail
// fast because repeating them cannot succeed.
func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal calendar payload: %w", err)
		}
	}

	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(computeRetryDelay(attempt - 1)):
			}
		}

		retryable, err := c.doOnce(ctx, method, path, payload, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		c.log.Warn("calendar request failed, retrying", "method", method, "path", path, "attempt", attempt, "error", err)
	}
	return lastErr
}

func (c *HTTPClient) doOnce(ctx context.Context, method, path string, payload []byte, out any) (retryable bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return true, fmt.Errorf("calendar request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		data, _ := io.ReadAll(resp.Body)
		return true, fmt.Errorf("calendar service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("calendar service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode calendar response: %w", err)
		}
	}
	return false, nil
}

func computeRetryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := retryBaseDelay << (attempt - 1)
	if delay > retryMaxDelay {
		return retryMaxDelay
	}
	return delay
}
