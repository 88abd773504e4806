// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/FocusLocal/services/focus/datatypes"
	"github.com/AleutianAI/FocusLocal/services/focus/middleware"
)

// SessionAPI is the surface of the focus server the state machine needs.
// The HTTP implementation below is the real one; tests substitute fakes.
type SessionAPI interface {
	// Create starts a new session on the server and returns the canonical row.
	Create(ctx context.Context, req datatypes.CreateSessionRequest, idemKey string) (datatypes.Session, error)

	// Transition applies a lifecycle action to the session and returns the
	// canonical row. Mutations carry an idempotency key; reads pass "".
	Transition(ctx context.Context, id string, req datatypes.TransitionRequest, idemKey string) (datatypes.Session, error)

	// Get fetches the canonical row for reconciliation.
	Get(ctx context.Context, id string) (datatypes.Session, error)
}

// HTTPSessionAPI talks to the focus server over its v1 REST surface.
type HTTPSessionAPI struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPSessionAPI builds a client for the server at baseURL. An empty
// token skips the Authorization header (local single-user mode).
func NewHTTPSessionAPI(baseURL, token string, timeout time.Duration) *HTTPSessionAPI {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPSessionAPI{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (a *HTTPSessionAPI) Create(
	ctx context.Context,
	req datatypes.CreateSessionRequest,
	idemKey string,
) (datatypes.Session, error) {
	return a.doSession(ctx, http.MethodPost, "/v1/sessions", req, idemKey)
}

func (a *HTTPSessionAPI) Transition(
	ctx context.Context,
	id string,
	req datatypes.TransitionRequest,
	idemKey string,
) (datatypes.Session, error) {
	return a.doSession(ctx, http.MethodPatch, "/v1/sessions/"+id, req, idemKey)
}

func (a *HTTPSessionAPI) Get(ctx context.Context, id string) (datatypes.Session, error) {
	return a.doSession(ctx, http.MethodGet, "/v1/sessions/"+id, nil, "")
}

// List fetches the session history. Not part of SessionAPI; the state
// machine never lists, only the history command does.
func (a *HTTPSessionAPI) List(ctx context.Context, q datatypes.ListSessionsQuery) (datatypes.ListSessionsResponse, error) {
	var out datatypes.ListSessionsResponse

	params := url.Values{}
	if q.From != nil {
		params.Set("from", q.From.Format(time.RFC3339))
	}
	if q.To != nil {
		params.Set("to", q.To.Format(time.RFC3339))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Offset > 0 {
		params.Set("offset", strconv.Itoa(q.Offset))
	}
	path := "/v1/sessions"
	if encoded := params.Encode(); encoded != "" {
		path += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+path, nil)
	if err != nil {
		return out, fmt.Errorf("failed to build the request: %w", err)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return out, fmt.Errorf("request to the focus server failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return out, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("failed to decode the server response: %w", err)
	}
	return out, nil
}

// doSession issues one request and decodes the canonical session row from
// any 2xx response.
func (a *HTTPSessionAPI) doSession(
	ctx context.Context,
	method, path string,
	body any,
	idemKey string,
) (datatypes.Session, error) {
	var session datatypes.Session

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return session, fmt.Errorf("failed to encode the request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return session, fmt.Errorf("failed to build the request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if idemKey != "" {
		req.Header.Set(middleware.IdempotencyKeyHeader, idemKey)
	}
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return session, fmt.Errorf("request to the focus server failed: %w", err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return session, err
	}
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return session, fmt.Errorf("failed to decode the server response: %w", err)
	}
	return session, nil
}

// statusError maps non-2xx responses onto the package sentinels, carrying
// the server's error message when one is present.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	var base error
	switch resp.StatusCode {
	case http.StatusBadRequest:
		base = ErrValidation
	case http.StatusUnauthorized:
		base = ErrUnauthorized
	case http.StatusNotFound:
		base = ErrNotFound
	case http.StatusConflict:
		base = ErrConflict
	case http.StatusTooManyRequests:
		base = ErrRateLimited
	default:
		base = ErrServer
	}

	var body struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Errorf("%w: %s", base, body.Error)
	}
	return fmt.Errorf("%w (status %d)", base, resp.StatusCode)
}
