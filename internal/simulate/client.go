package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/okian/podium/internal/domain/model"
	"github.com/okian/podium/internal/domain/types"
)

// client is a minimal JSON client for the podium API.
type client struct {
	base string
	http *http.Client
}

func newClient(base string, timeout time.Duration) *client {
	return &client{base: base, http: &http.Client{Timeout: timeout}}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// do sends body as JSON and decodes a 2xx response into out.
func (c *client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %s %s: %w", ErrRequest, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		var e apiError
		if json.Unmarshal(data, &e) == nil && e.Code != "" {
			return fmt.Errorf("%w: %s %s: %d %s: %s", ErrRequest, method, path, resp.StatusCode, e.Code, e.Message)
		}
		return fmt.Errorf("%w: %s %s: HTTP %d", ErrRequest, method, path, resp.StatusCode)
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("parse response: %w", err)
		}
	}
	return nil
}

func (c *client) health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/healthz", nil, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	return nil
}

func (c *client) createEvent(ctx context.Context, req types.CreateEventRequest) (types.EventResponse, error) {
	var out types.EventResponse
	err := c.do(ctx, http.MethodPost, "/v1/events", req, &out)
	return out, err
}

func (c *client) register(ctx context.Context, eventID, name string) (model.Contestant, error) {
	var out model.Contestant
	err := c.do(ctx, http.MethodPost, "/v1/events/"+eventID+"/contestants",
		types.RegisterContestantRequest{Name: name}, &out)
	return out, err
}

func (c *client) submit(ctx context.Context, req types.SubmitScoreRequest) (types.SubmitResult, error) {
	var out types.SubmitResult
	err := c.do(ctx, http.MethodPost, "/v1/scores", req, &out)
	return out, err
}

func (c *client) standings(ctx context.Context, eventID string) (types.Standings, error) {
	var out types.Standings
	err := c.do(ctx, http.MethodGet, "/v1/events/"+eventID+"/standings", nil, &out)
	return out, err
}

func (c *client) advance(ctx context.Context, eventID string) (model.Transition, error) {
	var out model.Transition
	err := c.do(ctx, http.MethodPost, "/v1/events/"+eventID+"/advance", nil, &out)
	return out, err
}
