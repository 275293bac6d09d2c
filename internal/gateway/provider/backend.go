// Package provider talks to language-model inference servers.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	// ErrUnsupported means the server does not offer the requested strategy
	// (HTTP 404/405/501 or a "not found" body).
	ErrUnsupported = errors.New("provider: strategy not supported")
	// ErrUnavailable covers transport failures, timeouts, 429 and 5xx.
	ErrUnavailable = errors.New("provider: backend unavailable")
)

// Prompt is one inference request.
type Prompt struct {
	System string
	User   string
	// JSON asks the server for a JSON-constrained answer when it supports one.
	JSON        bool
	Temperature float64
	MaxTokens   int
}

// Response is the raw model output plus any separately reported reasoning.
type Response struct {
	Content   string
	Reasoning string
	Model     string
}

// Backend exposes the two request strategies an inference server may offer.
type Backend interface {
	ID() string
	Model() string
	// Chat sends role-tagged messages.
	Chat(ctx context.Context, p Prompt) (Response, error)
	// Complete sends one flattened prompt.
	Complete(ctx context.Context, p Prompt) (Response, error)
}

// StatusError is a non-2xx answer from the server.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status=%d: %s", e.Code, e.Body)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == 404 || e.Code == 405 || e.Code == 501:
		return ErrUnsupported
	case e.Code == 429 || e.Code >= 500:
		return ErrUnavailable
	case strings.Contains(strings.ToLower(e.Body), "not found"):
		return ErrUnsupported
	}
	return nil
}

// Config is shared by the HTTP backends. Requests are sent once; a failed
// attempt surfaces as ErrUnavailable or ErrUnsupported to the caller.
type Config struct {
	ID      string
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Headers map[string]string
}

func newRestyClient(cfg Config, defaultBase string) *resty.Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = defaultBase
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	c := resty.New().
		SetBaseURL(base).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeaders(cfg.Headers)
	if cfg.APIKey != "" {
		c.SetAuthToken(cfg.APIKey)
	}
	return c
}

// post sends body to path and decodes a 2xx answer into out.
func post(ctx context.Context, c *resty.Client, path string, body, out any) error {
	resp, err := c.R().SetContext(ctx).SetBody(body).SetResult(out).Post(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if resp.IsError() || resp.StatusCode()/100 != 2 {
		return &StatusError{Code: resp.StatusCode(), Body: errorMessage(resp)}
	}
	return nil
}

func errorMessage(resp *resty.Response) string {
	body := strings.TrimSpace(resp.String())
	if len(body) > 512 {
		body = body[:512]
	}
	if body == "" {
		return resp.Status()
	}
	return body
}

// flatten renders a chat prompt for completion-style endpoints.
func flatten(p Prompt) string {
	if strings.TrimSpace(p.System) == "" {
		return p.User
	}
	return p.System + "\n\n" + p.User
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
