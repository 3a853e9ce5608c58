// Package generator talks to the external question generator service.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

const defaultTimeout = 8 * time.Second

// Config configures a Client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client requests freshly generated rounds. It implements battle.RoundSource
// and is meant to sit behind battle.Supply, which covers its failures.
type Client struct {
	baseURL string
	timeout time.Duration
	http    *http.Client
}

func NewClient(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		http:    cfg.HTTPClient,
	}
}

type roundsRequest struct {
	Subject    string `json:"subject"`
	Difficulty string `json:"difficulty,omitempty"`
	Count      int    `json:"count"`
}

type roundsResponse struct {
	Rounds []domain.Round `json:"rounds"`
}

// FetchRounds asks the generator for count rounds of subject.
func (c *Client) FetchRounds(ctx context.Context, subject, difficulty string, count int) ([]domain.Round, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(roundsRequest{Subject: subject, Difficulty: difficulty, Count: count})
	if err != nil {
		return nil, fmt.Errorf("marshal generator request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rounds", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build generator request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("generator request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return nil, fmt.Errorf("generator status %d: %s", res.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out roundsResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode generator response: %w", err)
	}
	for i := range out.Rounds {
		if out.Rounds[i].Subject == "" {
			out.Rounds[i].Subject = subject
		}
	}
	return out.Rounds, nil
}
