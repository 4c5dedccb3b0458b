// Package remote sends outbound contract calls and queries to a chain gateway
// over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"autorenew/internal/app"
	"autorenew/internal/domain"
)

const RequestIDHeader = "X-Request-Id"

type Options struct {
	Endpoint string
	Timeout  time.Duration
	// RPS limits outbound requests per second; zero means unlimited.
	RPS   float64
	Burst int
}

// ExecuteRequest is the body posted to {endpoint}/contracts/{addr}/execute.
type ExecuteRequest struct {
	Sender domain.Addr     `json:"sender"`
	Msg    json.RawMessage `json:"msg"`
	Funds  []domain.Coin   `json:"funds"`
}

// QueryRequest is the body posted to {endpoint}/contracts/{addr}/query.
type QueryRequest struct {
	Msg json.RawMessage `json:"msg"`
}

// Response wraps every gateway reply.
type Response struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

func New(o Options) (*Client, error) {
	if _, err := url.ParseRequestURI(o.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid gateway endpoint %q: %w", o.Endpoint, err)
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if o.RPS > 0 {
		limit = rate.Limit(o.RPS)
	}
	if o.Burst <= 0 {
		o.Burst = 1
	}
	return &Client{
		endpoint: strings.TrimRight(o.Endpoint, "/"),
		http:     &http.Client{Timeout: o.Timeout},
		limiter:  rate.NewLimiter(limit, o.Burst),
	}, nil
}

func (c *Client) Execute(ctx context.Context, m app.Message) (json.RawMessage, error) {
	body := ExecuteRequest{Sender: m.Origin, Msg: m.Call.Msg, Funds: m.Call.Funds}
	if body.Funds == nil {
		body.Funds = []domain.Coin{}
	}
	return c.post(ctx, m.Call.Contract, "execute", body)
}

func (c *Client) QueryContract(ctx context.Context, contract domain.Addr, query any, out any) error {
	raw, err := json.Marshal(query)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	data, err := c.post(ctx, contract, "query", QueryRequest{Msg: raw})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode query response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, contract domain.Addr, op string, payload any) (json.RawMessage, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	target := fmt.Sprintf("%s/contracts/%s/%s", c.endpoint, url.PathEscape(contract.String()), op)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(RequestIDHeader, requestID)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	log.Debug().
		Str("request_id", requestID).
		Str("contract", contract.String()).
		Str("op", op).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("gateway call")

	var out Response
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil && resp.StatusCode < 400 {
			return nil, fmt.Errorf("failed to decode gateway response: %w", err)
		}
	}
	if resp.StatusCode >= 400 {
		msg := out.Error
		if msg == "" {
			msg = strings.TrimSpace(string(respBody))
		}
		return nil, fmt.Errorf("HTTP %d error: %s", resp.StatusCode, msg)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("gateway error: %s", out.Error)
	}
	return out.Data, nil
}
