package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/ierr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_ActivateSuccess(t *testing.T) {
	companyID := uuid.New()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/activate", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var req dto.ActivateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "ABCD-EFGH-JKLM-NPQR", req.LicenseKey)
		assert.Equal(t, "fp-123", req.MachineFingerprint)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(dto.ActivateResponse{
			Success:         true,
			ActivationID:    uuid.New(),
			LicenseKey:      req.LicenseKey,
			LicenseType:     "offline",
			ExpiresAt:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			DaysUntilExpiry: 90,
			GracePeriodDays: 7,
			Company:         dto.CompanySnapshot{ID: companyID, Name: "Acme", Username: "acme"},
		})
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil, zap.NewNop())
	resp, err := c.Activate(context.Background(), dto.ActivateRequest{LicenseKey: "ABCD-EFGH-JKLM-NPQR", MachineFingerprint: "fp-123"})
	require.NoError(t, err)

	assert.Equal(t, companyID, resp.Company.ID)
	assert.Equal(t, 7, resp.GracePeriodDays)
}

func TestClient_ActivateStructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(dto.APIErrorResponse{Code: "DEVICE_LIMIT_EXCEEDED", Message: "License has no free device slots."})
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, zap.NewNop()).Activate(context.Background(), dto.ActivateRequest{LicenseKey: "ABCD-EFGH-JKLM-NPQR", MachineFingerprint: "fp"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "DEVICE_LIMIT_EXCEEDED", apiErr.Code)
	assert.ErrorIs(t, err, ierr.ErrDeviceLimitExceeded)
}

func TestClient_ActivateUnstructuredError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, zap.NewNop()).Activate(context.Background(), dto.ActivateRequest{LicenseKey: "ABCD-EFGH-JKLM-NPQR", MachineFingerprint: "fp"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "HTTP_ERROR", apiErr.Code)
}

func TestClient_ActivateTruncatedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"success":true,"licenseKey":"ABCD`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, nil, zap.NewNop()).Activate(context.Background(), dto.ActivateRequest{LicenseKey: "ABCD-EFGH-JKLM-NPQR", MachineFingerprint: "fp"})
	assert.ErrorContains(t, err, "decode")
}
