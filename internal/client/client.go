// Package client talks to the generation proxy over HTTP on behalf of a
// console.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/dmorgan81/bananaconsole/internal/api"
	"github.com/dmorgan81/bananaconsole/internal/console"
	"github.com/dmorgan81/bananaconsole/internal/handler"
	"github.com/dmorgan81/bananaconsole/internal/log"
	"github.com/samber/do"
)

const unknownError = "unknown error generating the image"

type Client struct {
	HTTP    *http.Client
	BaseURL string
}

// NewClient returns an HTTP client for the configured proxy URL, or the
// handler itself when no proxy URL is set.
func NewClient(i *do.Injector) (console.Generator, error) {
	proxyURL := do.MustInvokeNamed[string](i, "proxy_url")
	if proxyURL == "" {
		return do.MustInvoke[*handler.Handler](i), nil
	}
	return &Client{
		HTTP:    do.MustInvoke[*http.Client](i),
		BaseURL: proxyURL,
	}, nil
}

func (c *Client) Generate(ctx context.Context, req api.GenerateRequest) (api.GenerateResponse, error) {
	log := log.FromContextOrDiscard(ctx).WithGroup("client").With("proxy", c.BaseURL)
	log.Debug("calling generation proxy")

	body, err := json.Marshal(req)
	if err != nil {
		return api.GenerateResponse{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return api.GenerateResponse{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return api.GenerateResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(resp.Body)
		log.Warn("proxy rejected request", "status", resp.StatusCode)
		return api.GenerateResponse{}, errors.New(errorText(text))
	}

	var out api.GenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return api.GenerateResponse{}, fmt.Errorf("decoding proxy response: %w", err)
	}
	return out, nil
}

// errorText prefers the error field of a JSON body, then the raw body.
func errorText(body []byte) string {
	var e api.ErrorResponse
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return e.Error
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return unknownError
}
