// xbltracker - Xbox Live Achievement Overlay Core
// Copyright 2026 xbltracker contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/xbltracker/xbltracker

// Package xhttp wraps net/http with the request shapes the Xbox services
// need: form posts, signed JSON posts, authorized GETs, and raw
// downloads. Every helper surfaces non-2xx statuses as classified
// errors and records per-endpoint metrics.
package xhttp

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/xbltracker/xbltracker/internal/metrics"
	"github.com/xbltracker/xbltracker/internal/xerrors"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 30 * time.Second

// maxErrorBodyBytes limits how much of an error response is kept for the
// error message.
const maxErrorBodyBytes = 512

// Client issues HTTP requests with a shared timeout.
type Client struct {
	httpClient *http.Client
}

// New creates a Client with the default timeout.
func New() *Client {
	return NewWithTimeout(DefaultTimeout)
}

// NewWithTimeout creates a Client with a custom timeout.
func NewWithTimeout(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PostForm sends a URL-encoded form and decodes the JSON response into out.
func (c *Client) PostForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return xerrors.Wrap(xerrors.KindNetwork, "post form", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, out)
}

// PostJSON marshals body, sends it, and decodes the JSON response into
// out. Extra headers (signature, contract version, authorization) are
// applied verbatim.
func (c *Client) PostJSON(ctx context.Context, endpoint string, body []byte, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return xerrors.Wrap(xerrors.KindNetwork, "post json", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

// GetJSON sends a GET with the given headers and decodes the JSON
// response into out.
func (c *Client) GetJSON(ctx context.Context, endpoint string, headers map[string]string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return xerrors.Wrap(xerrors.KindNetwork, "get json", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return c.do(req, out)
}

// Download fetches raw bytes from endpoint.
func (c *Client) Download(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindNetwork, "download", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportErr("download", err)
	}
	defer func() { _ = resp.Body.Close() }()
	observe(req, resp.StatusCode, start)

	if err := statusError("download", req, resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindNetwork, "download", err)
	}
	return data, nil
}

// do executes the request, checks the status, and decodes the body into
// out when out is non-nil.
func (c *Client) do(req *http.Request, out any) error {
	op := req.Method + " " + req.URL.Host

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportErr(op, err)
	}
	defer func() { _ = resp.Body.Close() }()
	observe(req, resp.StatusCode, start)

	if err := statusError(op, req, resp); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return xerrors.Wrap(xerrors.KindDecode, op, err)
	}
	return nil
}

// statusError converts a non-2xx response into a classified error
// carrying a snippet of the body.
func statusError(op string, req *http.Request, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))

	kind := xerrors.KindHTTP5xx
	if resp.StatusCode < 500 {
		kind = xerrors.KindHTTP4xx
	}
	return xerrors.New(kind, op, "%s returned status %d: %s", req.URL.Host, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func classifyTransportErr(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return xerrors.Wrap(xerrors.KindCancelled, op, err)
	}
	return xerrors.Wrap(xerrors.KindNetwork, op, err)
}

func observe(req *http.Request, status int, start time.Time) {
	metrics.HTTPRequestsTotal.WithLabelValues(req.URL.Host, strconv.Itoa(status)).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(req.URL.Host).Observe(time.Since(start).Seconds())
}
