// Package meeting provides the video meeting provider client.
package meeting

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
)

// Meeting is a provisioned video room.
type Meeting struct {
	MeetingID string `json:"meetingId"`
	JoinURL   string `json:"joinUrl"`
}

// Client is the meeting port consumed by the booking manager and the repair job.
type Client interface {
	CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int) (Meeting, error)
	DeleteMeeting(ctx context.Context, meetingID string) error
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

func NewHTTPClient(cfg config.MeetingConfig, log *logger.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.GetMeetingURL(), "/"),
		apiKey:  cfg.GetMeetingKey(),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

type createMeetingRequest struct {
	Topic           string    `json:"topic"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"durationMinutes"`
}

func (c *HTTPClient) CreateMeeting(ctx context.Context, topic string, start time.Time, durationMinutes int) (Meeting, error) {
	payload, err := json.Marshal(createMeetingRequest{Topic: topic, Start: start, DurationMinutes: durationMinutes})
	if err != nil {
		return Meeting{}, fmt.Errorf("marshal meeting payload: %w", err)
	}

	var meeting Meeting
	var lastErr error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Meeting{}, ctx.Err()
			case <-time.After(computeRetryDelay(attempt - 1)):
			}
		}

		retryable, err := c.doOnce(ctx, http.MethodPost, "/meetings", payload, &meeting)
		if err == nil {
			return meeting, nil
		}
		lastErr = err
		if !retryable {
			return Meeting{}, err
		}
		c.log.Warn("meeting request failed, retrying", "attempt", attempt, "error", err)
	}
	return Meeting{}, lastErr
}

func (c *HTTPClient) DeleteMeeting(ctx context.Context, meetingID string) error {
	_, err := c.doOnce(ctx, http.MethodDelete, "/meetings/"+meetingID, nil, nil)
	return err
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
		return true, fmt.Errorf("meeting request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= http.StatusInternalServerError {
		data, _ := io.ReadAll(resp.Body)
		return true, fmt.Errorf("meeting service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if resp.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(resp.Body)
		return false, fmt.Errorf("meeting service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return false, fmt.Errorf("decode meeting response: %w", err)
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
