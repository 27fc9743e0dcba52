// Package client is the station's HTTP client for the lot API. Wire shapes
// are normalised into model types before they leave this package.
package client

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"lotflow/internal/apierror"
	"lotflow/internal/dto"
	"lotflow/internal/infra"
	"lotflow/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Status of the API as seen by the station.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Retry policy for transient failures.
const (
	maxAttempts  = 3
	retryBackoff = 500 * time.Millisecond
)

// StatusError is a non-2xx answer from the API. It unwraps to the matching
// apierror sentinel so callers can use errors.Is.
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	return fmt.Sprintf("api: HTTP %d", e.Code)
}

func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusNotFound:
		return apierror.ErrNotFound
	case e.Code == http.StatusConflict:
		return apierror.ErrConflict
	case e.Code == http.StatusBadRequest || e.Code == http.StatusUnprocessableEntity:
		return apierror.ErrValidation
	case e.Code == http.StatusUnauthorized:
		return apierror.ErrUnauthorized
	default:
		return nil
	}
}

// transient reports whether err is worth retrying: transport errors and 5xx.
func transient(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500
	}
	return !errors.Is(err, context.Canceled)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	breaker    *infra.Breaker
	log        zerolog.Logger
	token      string
	backoff    time.Duration
}

func New(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		breaker:    infra.NewBreaker(infra.BreakerConfig{FailureThreshold: 5, OpenTimeout: 30 * time.Second}),
		log:        log,
		backoff:    retryBackoff,
	}
}

// SetToken sets the bearer token sent on every request.
func (c *Client) SetToken(token string) { c.token = token }

// Login exchanges operator credentials for a token and keeps it.
func (c *Client) Login(ctx context.Context, username, password string) error {
	var resp dto.LoginResponse
	if err := c.do(ctx, http.MethodPost, "/v1/auth/login", dto.LoginRequest{Username: username, Password: password}, &resp); err != nil {
		return err
	}
	c.token = resp.AccessToken
	return nil
}

// Health probes the API with bounded retries and reports online or offline.
func (c *Client) Health(ctx context.Context) string {
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/health", nil, nil)
	})
	if err != nil {
		c.log.Debug().Err(err).Msg("client: api offline")
		return StatusOffline
	}
	return StatusOnline
}

func (c *Client) CreateLot(ctx context.Context, req dto.CreateLotRequest) (*dto.CreateLotResponse, error) {
	var resp dto.CreateLotResponse
	if err := c.do(ctx, http.MethodPost, "/v1/lots", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetLot fetches a lot with its items. Counters are recomputed from the items.
func (c *Client) GetLot(ctx context.Context, id uuid.UUID) (model.LotSummary, []model.LotItem, error) {
	var env dto.LotEnvelope
	if err := c.do(ctx, http.MethodGet, "/v1/lots/"+id.String(), nil, &env); err != nil {
		return model.LotSummary{}, nil, err
	}
	summary, items := dto.NormalizeDetail(c.log, env.Item)
	return summary, items, nil
}

func (c *Client) ListLots(ctx context.Context, status model.LotStatus) ([]model.LotSummary, error) {
	var resp dto.LotListResponse
	path := "/v1/lots?status=" + url.QueryEscape(string(status))
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.LotSummary, 0, len(resp.Items))
	for _, r := range resp.Items {
		s, _ := dto.NormalizeSummary(c.log, r)
		out = append(out, s)
	}
	return out, nil
}

func (c *Client) UpdateItem(ctx context.Context, itemID uuid.UUID, req dto.UpdateItemRequest) (*dto.UpdateItemResponse, error) {
	var resp dto.UpdateItemResponse
	if err := c.do(ctx, http.MethodPut, "/v1/lots/items/"+itemID.String(), req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) updateLot(ctx context.Context, id uuid.UUID, req dto.UpdateLotRequest) (model.LotSummary, error) {
	var env dto.LotEnvelope
	if err := c.do(ctx, http.MethodPut, "/v1/lots/"+id.String(), req, &env); err != nil {
		return model.LotSummary{}, err
	}
	s, _ := dto.NormalizeDetail(c.log, env.Item)
	return s, nil
}

// FinishLot asks the server to finish the lot; the server re-checks completion.
func (c *Client) FinishLot(ctx context.Context, id uuid.UUID) (model.LotSummary, error) {
	status := "finished"
	return c.updateLot(ctx, id, dto.UpdateLotRequest{Status: &status})
}

func (c *Client) RecoverLot(ctx context.Context, id uuid.UUID) (model.LotSummary, error) {
	status := "recovered"
	return c.updateLot(ctx, id, dto.UpdateLotRequest{Status: &status})
}

func (c *Client) RenameLot(ctx context.Context, id uuid.UUID, name string) (model.LotSummary, error) {
	return c.updateLot(ctx, id, dto.UpdateLotRequest{LotName: &name})
}

// UploadPDF sends a rendered report and returns the server pdf_path. Transient
// failures are retried a bounded number of times.
func (c *Client) UploadPDF(ctx context.Context, lotID uuid.UUID, pdf []byte) (string, error) {
	req := dto.UploadPDFRequest{PDFBase64: base64.StdEncoding.EncodeToString(pdf)}
	var resp dto.PDFResponse
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodPost, "/v1/lots/"+lotID.String()+"/pdf", req, &resp)
	})
	if err != nil {
		return "", err
	}
	return resp.PDFPath, nil
}

// Catalog returns brands with their models.
func (c *Client) Catalog(ctx context.Context) ([]model.Marque, error) {
	var resp dto.MarqueListResponse
	if err := c.do(ctx, http.MethodGet, "/v1/marques/all", nil, &resp); err != nil {
		return nil, err
	}
	out := make([]model.Marque, 0, len(resp.Items))
	for _, m := range resp.Items {
		mq := model.Marque{ID: m.ID, Name: m.Name, Modeles: make([]model.Modele, 0, len(m.Modeles))}
		for _, md := range m.Modeles {
			mq.Modeles = append(mq.Modeles, model.Modele{ID: md.ID, MarqueID: md.MarqueID, Name: md.Name})
		}
		out = append(out, mq)
	}
	return out, nil
}

func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil || !transient(err) {
			return err
		}
		if attempt == maxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.backoff):
		}
	}
	return err
}

// do performs one request through the circuit breaker. Only transport errors
// and 5xx answers count as breaker failures.
func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var apiErr error
	err := c.breaker.Execute(func() error {
		apiErr = c.send(ctx, method, path, body, out)
		if apiErr != nil && transient(apiErr) {
			return apiErr
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, infra.ErrBreakerOpen) {
			return fmt.Errorf("api %s %s: %w", method, path, err)
		}
		return err
	}
	return apiErr
}

func (c *Client) send(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("api: marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("api: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s unreachable: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env apierror.APIError
		_ = json.NewDecoder(resp.Body).Decode(&env)
		return &StatusError{Code: resp.StatusCode, Detail: env.Detail}
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}
