// Package api is a typed client for the workflow hub backend. Every call
// goes through the *http.Client it was given, which in the console is the
// session-aware transport.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"workflowhub/console/internal/session"
)

const maxBodyBytes = 1 << 20

type Client struct {
	baseURL    string
	loginPath  string
	httpClient *http.Client
}

func New(baseURL, loginPath string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if loginPath == "" {
		loginPath = "/api/auth/login"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		loginPath:  loginPath,
		httpClient: httpClient,
	}
}

// Login posts the credentials and returns the raw response body for the
// session manager to normalise.
func (c *Client) Login(ctx context.Context, email, password string) ([]byte, error) {
	payload := map[string]string{"email": email, "password": password}
	status, body, err := c.send(ctx, http.MethodPost, c.loginPath, payload)
	if err != nil {
		return nil, err
	}
	switch {
	case status >= 200 && status < 300:
		return body, nil
	case status == http.StatusBadRequest, status == http.StatusUnauthorized, status == http.StatusForbidden:
		return nil, fmt.Errorf("%w: %w", session.ErrInvalidCredentials, newStatusError(http.MethodPost, c.loginPath, status, body))
	default:
		return nil, newStatusError(http.MethodPost, c.loginPath, status, body)
	}
}

// do sends an authenticated call and decodes a 2xx JSON body into out when
// out is non-nil. Non-2xx statuses become the session error types.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	status, body, err := c.send(ctx, method, path, in)
	if err != nil {
		return err
	}
	switch {
	case status >= 200 && status < 300:
		if out == nil || len(bytes.TrimSpace(body)) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("decode %s %s response: %w", method, path, err)
		}
		return nil
	case status == http.StatusUnauthorized:
		return &session.TokenRejectedError{Method: method, Path: path}
	case status == http.StatusForbidden:
		return &session.AuthorizationError{Method: method, Path: path, Message: errorMessage(body)}
	default:
		return newStatusError(method, path, status, body)
	}
}

func (c *Client) send(ctx context.Context, method, path string, in any) (int, []byte, error) {
	var reader io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s request: %w", method, path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, &session.NetworkError{Op: method + " " + path, Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return 0, nil, &session.NetworkError{Op: "read " + method + " " + path, Cause: err}
	}
	if len(body) > maxBodyBytes {
		return 0, nil, fmt.Errorf("%s %s: %w (limit %d bytes)", method, path, ErrResponseTooLarge, maxBodyBytes)
	}
	return resp.StatusCode, body, nil
}
