package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/config"
	"github.com/janseva/gateway/internal/services"
	"github.com/janseva/gateway/internal/vault"
)

func newKycHandler(t *testing.T) (*KycHandler, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mr, err := miniredis.Run()
	assert.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	v, err := vault.New(vault.Config{MasterKey: "handler-test-master", Salt: []byte("0123456789abcdef")})
	assert.NoError(t, err)

	cfg := &config.KycConfig{
		ChallengeTTL:       10 * time.Minute,
		NameMatchThreshold: 85,
		ProviderTimeout:    time.Second,
	}
	service := services.NewKycService(db, rdb, v, services.SandboxIdentityProvider{}, cfg)
	return NewKycHandler(service), mock
}

func authedRequest(method, path string, body []byte) *http.Request {
	r := httptest.NewRequest(method, path, bytes.NewBuffer(body))
	return r.WithContext(authz.WithPrincipal(r.Context(), &authz.Principal{
		AccountID: 42, Email: "varun@example.com", Role: authz.RoleCitizen,
	}))
}

func TestKycHandlerInitiate(t *testing.T) {
	t.Run("returns request id and masked values", func(t *testing.T) {
		handler, _ := newKycHandler(t)

		body, _ := json.Marshal(map[string]string{"idNumber": "9999 8888 1111"})
		w := httptest.NewRecorder()
		handler.Initiate(w, authedRequest("POST", "/kyc/initiate", body))

		assert.Equal(t, http.StatusOK, w.Code)
		var resp map[string]string
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp["requestId"])
		assert.Equal(t, "XXXX-XXXX-1111", resp["idMasked"])
		assert.Equal(t, "XXXXXX9876", resp["maskedMobile"])
	})

	t.Run("requires authentication", func(t *testing.T) {
		handler, _ := newKycHandler(t)

		body, _ := json.Marshal(map[string]string{"idNumber": "999988881111"})
		w := httptest.NewRecorder()
		handler.Initiate(w, httptest.NewRequest("POST", "/kyc/initiate", bytes.NewBuffer(body)))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("rejects malformed id numbers", func(t *testing.T) {
		handler, _ := newKycHandler(t)

		body, _ := json.Marshal(map[string]string{"idNumber": "12345"})
		w := httptest.NewRecorder()
		handler.Initiate(w, authedRequest("POST", "/kyc/initiate", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		handler, _ := newKycHandler(t)

		body := []byte(`{"idNumber":"999988881111","extra":"field"}`)
		w := httptest.NewRecorder()
		handler.Initiate(w, authedRequest("POST", "/kyc/initiate", body))

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestKycHandlerVerifyFlow(t *testing.T) {
	handler, mock := newKycHandler(t)

	body, _ := json.Marshal(map[string]string{"idNumber": "999988881111"})
	w := httptest.NewRecorder()
	handler.Initiate(w, authedRequest("POST", "/kyc/initiate", body))
	assert.Equal(t, http.StatusOK, w.Code)

	var initResp map[string]string
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &initResp))

	mock.ExpectExec("UPDATE accounts").WillReturnResult(sqlmock.NewResult(0, 1))

	body, _ = json.Marshal(map[string]string{
		"requestId": initResp["requestId"],
		"idNumber":  "999988881111",
		"name":      "Varun Patel",
		"otp":       "123456",
	})
	w = httptest.NewRecorder()
	handler.Verify(w, authedRequest("POST", "/kyc/verify", body))

	assert.Equal(t, http.StatusOK, w.Code)
	var result services.KycResult
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Match)
	assert.Equal(t, 2, result.KycLevel)

	// Replay of a consumed request id.
	w = httptest.NewRecorder()
	handler.Verify(w, authedRequest("POST", "/kyc/verify", body))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestKycHandlerStatus(t *testing.T) {
	handler, mock := newKycHandler(t)

	mock.ExpectQuery("SELECT kyc_level, aadhaar_masked FROM accounts").
		WithArgs(42).
		WillReturnRows(sqlmock.NewRows([]string{"kyc_level", "aadhaar_masked"}).
			AddRow(2, "XXXX-XXXX-1111"))

	w := httptest.NewRecorder()
	handler.Status(w, authedRequest("GET", "/kyc/status", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, float64(2), resp["kycLevel"])
	assert.Equal(t, "XXXX-XXXX-1111", resp["idMasked"])
}
