package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"go.uber.org/zap"
)

// APIError is a structured error returned by the license server.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("license server: %s (%d): %s", e.Code, e.Status, e.Message)
}

// Unwrap lets callers match server error codes with errors.Is against ierr.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "INVALID_KEY":
		return ierr.ErrInvalidKey
	case "LICENSE_REVOKED":
		return ierr.ErrLicenseRevoked
	case "LICENSE_EXPIRED":
		return ierr.ErrLicenseExpired
	case "DEVICE_LIMIT_EXCEEDED":
		return ierr.ErrDeviceLimitExceeded
	case "TRANSIENT_STORE_FAILURE":
		return ierr.ErrTransientStore
	case "VALIDATION_ERROR":
		return ierr.ErrValidation
	case "NOT_FOUND":
		return ierr.ErrNotFound
	}
	return nil
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
}

func New(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		logger:  logger.Named("ActivationClient"),
	}
}

// Activate calls POST /api/v1/activate. The response is returned only when
// it was received and decoded in full.
func (c *Client) Activate(ctx context.Context, req dto.ActivateRequest) (*dto.ActivateResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode activation request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/activate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build activation request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug("Sending activation request", zap.String("url", httpReq.URL.String()))
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("activation request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read activation response: %w", err)
	}

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode, Code: "HTTP_ERROR", Message: http.StatusText(resp.StatusCode)}
		var errBody dto.APIErrorResponse
		if json.Unmarshal(raw, &errBody) == nil && errBody.Code != "" {
			apiErr.Code = errBody.Code
			apiErr.Message = errBody.Message
		}
		c.logger.Warn("Activation rejected", zap.Int("status", apiErr.Status), zap.String("code", apiErr.Code))
		return nil, apiErr
	}

	var out dto.ActivateResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode activation response: %w", err)
	}
	if !out.Success || out.LicenseKey == "" {
		return nil, fmt.Errorf("activation response is incomplete")
	}
	return &out, nil
}
