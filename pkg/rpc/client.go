package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/job"
	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/wellness"
)

// Client calls the api binary. Error responses come back as *apperr.Error
// with the server's kind.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL (e.g. "http://localhost:8080"). A
// nil httpClient gets a 10 second timeout.
func NewClient(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) ScheduleNotification(ctx context.Context, req ScheduleNotificationRequest) (ScheduleNotificationResponse, error) {
	var out ScheduleNotificationResponse
	err := c.do(ctx, http.MethodPost, "/v1/notifications", req, &out)
	return out, err
}

func (c *Client) SubmitChatEvent(ctx context.Context, req SubmitChatEventRequest) (SubmitChatEventResponse, error) {
	var out SubmitChatEventResponse
	err := c.do(ctx, http.MethodPost, "/v1/chat-events", req, &out)
	return out, err
}

func (c *Client) CheckIn(ctx context.Context, req CheckInRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/check-ins", req, nil)
}

func (c *Client) RecordActivity(ctx context.Context, req ActivityRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/activities", req, nil)
}

// RegisterEmployee reports whether the employee was newly created.
func (c *Client) RegisterEmployee(ctx context.Context, p wellness.Profile) (bool, error) {
	var out RegisterEmployeeResponse
	err := c.do(ctx, http.MethodPost, "/v1/employees", p, &out)
	return out.Created, err
}

func (c *Client) GetJob(ctx context.Context, id string) (*job.Job, error) {
	var out job.Job
	if err := c.do(ctx, http.MethodGet, "/v1/jobs/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body *bytes.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(b)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Transient(fmt.Sprintf("%s %s", method, path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var e ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		kind := apperr.Kind(e.Kind)
		if kind == "" {
			kind = apperr.KindInternal
			if resp.StatusCode >= 500 {
				kind = apperr.KindTransientDependency
			}
		}
		if e.Error == "" {
			e.Error = resp.Status
		}
		return apperr.New(kind, fmt.Sprintf("%s %s: %s", method, path, e.Error), nil)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response of %s %s: %w", method, path, err)
	}
	return nil
}
