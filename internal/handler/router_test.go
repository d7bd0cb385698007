package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/makkenzo/device-license-service/internal/config"
	"github.com/makkenzo/device-license-service/internal/domain/company"
	"github.com/makkenzo/device-license-service/internal/handler"
	"github.com/makkenzo/device-license-service/internal/handler/dto"
	"github.com/makkenzo/device-license-service/internal/handler/middleware"
	"github.com/makkenzo/device-license-service/internal/service"
	"github.com/makkenzo/device-license-service/internal/storage/memstorage"
	"github.com/makkenzo/device-license-service/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testServer struct {
	router  *gin.Engine
	company *company.Company
	token   string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	companies := memstorage.NewCompanyRepository()
	tenant := &company.Company{Name: "Initech", Username: "initech", PasswordHash: "$2a$10$hash"}
	companies.Put(tenant)
	repo := memstorage.NewLicenseRepository(nil)

	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	require.NoError(t, err)
	authService, err := service.NewAuthService(
		config.JWTConfig{Secret: "router-test", TTL: time.Hour, Issuer: "test"},
		config.AdminConfig{Username: "admin", PasswordHash: string(hash)},
		nil, logger,
	)
	require.NoError(t, err)

	licenseService := service.NewLicenseService(repo, companies, util.NewKeyGenerator(nil), config.ActivationConfig{}, nil, logger)
	activationService := service.NewActivationService(repo, companies, nil, logger)

	router := handler.NewRouter(handler.RouterDeps{
		Health:       handler.NewHealthHandler(nil, nil, logger),
		Licenses:     handler.NewLicenseHandler(licenseService, activationService, logger),
		Activations:  handler.NewActivationHandler(activationService, logger),
		Auth:         handler.NewAuthHandler(authService, logger),
		AuthRequired: middleware.AuthMiddleware(authService, logger),
		Logger:       logger,
	})

	s := &testServer{router: router, company: tenant}

	w := s.do(t, http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Username: "admin", Password: "hunter2"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login dto.LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	s.token = login.AccessToken
	return s
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestRouter_LicenseLifecycle(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/licenses", map[string]any{
		"company_id":  s.company.ID,
		"max_devices": 1,
		"term_months": 6,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[dto.LicenseResponse](t, w)
	assert.True(t, util.IsValidLicenseKey(created.LicenseKey))
	assert.Equal(t, "valid", string(created.GraceState))

	w = s.do(t, http.MethodPost, "/api/v1/activate", dto.ActivateRequest{
		LicenseKey:         created.LicenseKey,
		MachineFingerprint: "AAA",
		MachineName:        "front-desk",
		OSInfo:             "windows/amd64",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	activated := decode[dto.ActivateResponse](t, w)
	assert.True(t, activated.Success)
	assert.Equal(t, "initech", activated.Company.Username)
	assert.Equal(t, "$2a$10$hash", activated.Company.PasswordHash)

	w = s.do(t, http.MethodPost, "/api/v1/activate", dto.ActivateRequest{LicenseKey: created.LicenseKey, MachineFingerprint: "AAA"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/activate", dto.ActivateRequest{LicenseKey: created.LicenseKey, MachineFingerprint: "BBB"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "DEVICE_LIMIT_EXCEEDED", decode[dto.APIErrorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/licenses/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	detail := decode[dto.LicenseDetailResponse](t, w)
	require.Len(t, detail.Activations, 1)
	require.NotNil(t, detail.ActiveActivations)
	assert.Equal(t, 1, *detail.ActiveActivations)

	w = s.do(t, http.MethodGet, "/api/v1/licenses?company_id="+s.company.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode[dto.PaginatedLicenseResponse](t, w)
	assert.Equal(t, int64(1), list.TotalCount)

	w = s.do(t, http.MethodDelete, "/api/v1/activations/"+activated.ActivationID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 0, decode[dto.DeactivateDeviceResponse](t, w).ActivatedDevices)

	w = s.do(t, http.MethodPost, "/api/v1/licenses/"+created.ID.String()+"/revoke", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "revoked", string(decode[dto.RevokeLicenseResponse](t, w).License.Status))

	w = s.do(t, http.MethodPost, "/api/v1/activate", dto.ActivateRequest{LicenseKey: created.LicenseKey, MachineFingerprint: "AAA"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "LICENSE_REVOKED", decode[dto.APIErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/v1/licenses/"+created.ID.String()+"/renew", map[string]int{"months": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", string(decode[dto.LicenseResponse](t, w).Status))
}

func TestRouter_Errors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/activate", dto.ActivateRequest{LicenseKey: "ZZZZ-ZZZZ-ZZZZ-ZZZZ", MachineFingerprint: "AAA"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "INVALID_KEY", decode[dto.APIErrorResponse](t, w).Code)

	w = s.do(t, http.MethodPost, "/api/v1/activate", map[string]string{"licenseKey": "ZZZZ-ZZZZ-ZZZZ-ZZZZ"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode[dto.APIErrorResponse](t, w).Code)

	w = s.do(t, http.MethodGet, "/api/v1/licenses/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPatch, "/api/v1/licenses/00000000-0000-0000-0000-000000000001", map[string]string{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	s.token = ""
	w = s.do(t, http.MethodGet, "/api/v1/licenses", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", dto.LoginRequest{Username: "admin", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_Healthz(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"disabled"`)
}
