// Package retrieval adapts the classic (non-agentic) RAG pipeline behind the
// domain.ClassicRetriever interface. The pipeline is reached over HTTP.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"agentic-rag/internal/domain"
)

// Default client timeouts.
const (
	defaultConnTimeout = 10 * time.Second
	defaultRespTimeout = 30 * time.Second
)

// Default connection pool settings: one upstream host, moderate concurrency,
// long-lived connections.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultIdleConnTimeout     = 120 * time.Second
)

// Config configures the HTTP classic retriever.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
}

// Client calls the classic RAG pipeline's /query endpoint.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient creates a retriever client with a pooled transport.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	respTimeout := cfg.RespTimeout
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		ForceAttemptHTTP2:     true,
	}

	return &Client{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Transport: transport,
			Timeout:   connTimeout + respTimeout,
		},
		logger: logger,
	}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer  string          `json:"answer"`
	Sources []domain.Source `json:"sources"`
}

// Retrieve implements domain.ClassicRetriever.
func (c *Client) Retrieve(ctx context.Context, query string) (*domain.RetrievalResult, error) {
	body, err := json.Marshal(queryRequest{Query: query})
	if err != nil {
		return nil, domain.WrapOp("retrieval.Retrieve", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, domain.WrapOp("retrieval.Retrieve", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewDomainError("retrieval.Retrieve", domain.ErrTimeout, ctx.Err().Error())
		}
		return nil, domain.NewDomainError("retrieval.Retrieve", domain.ErrRetrievalFailed, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Read a bounded amount of the error body for the log.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("classic pipeline returned error",
			"status", resp.StatusCode,
			"body", string(detail),
		)
		return nil, domain.NewDomainError("retrieval.Retrieve", domain.ErrRetrievalFailed,
			fmt.Sprintf("status %d", resp.StatusCode))
	}

	var out queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.NewDomainError("retrieval.Retrieve", domain.ErrRetrievalFailed,
			"decode response: "+err.Error())
	}

	c.logger.Debug("classic retrieval complete",
		"sources", len(out.Sources),
		"elapsed", time.Since(start),
	)
	return &domain.RetrievalResult{Answer: out.Answer, Sources: out.Sources}, nil
}

var _ domain.ClassicRetriever = (*Client)(nil)
