package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
)

type registrationShape struct {
	Email string `validate:"required,email"`
	Name  string `validate:"required,min=2"`
	Phone string `validate:"required,e164"`
}

func TestValidationHelper_ValidateStruct(t *testing.T) {
	vh := NewValidationHelper()

	t.Run("valid struct", func(t *testing.T) {
		valid := registrationShape{
			Email: "varun@example.com",
			Name:  "Varun Patel",
			Phone: "+919876543210",
		}
		assert.NoError(t, vh.ValidateStruct(&valid))
	})

	t.Run("collects every failing field", func(t *testing.T) {
		invalid := registrationShape{
			Name:  "V",          // too short
			Phone: "9876543210", // missing country code
			// Email missing
		}

		err := vh.ValidateStruct(&invalid)
		assert.Error(t, err)

		validationErrors, ok := err.(validator.ValidationErrors)
		assert.True(t, ok)
		assert.Len(t, validationErrors, 3)
	})
}

func TestFlowErrorHTTPStatus(t *testing.T) {
	cases := []struct {
		code   string
		status int
	}{
		{CodeValidation, http.StatusBadRequest},
		{CodeAuthentication, http.StatusUnauthorized},
		{CodeExpired, http.StatusUnauthorized},
		{CodeAuthorization, http.StatusForbidden},
		{CodeRateLimited, http.StatusTooManyRequests},
		{CodeUpstream, http.StatusBadGateway},
		{"UNKNOWN", http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			fe := NewFlowError(tc.code, "message")
			assert.Equal(t, tc.status, fe.HTTPStatus())
		})
	}
}

func TestSendFlowError(t *testing.T) {
	t.Run("writes envelope with code and retry hint", func(t *testing.T) {
		fe := NewFlowError(CodeRateLimited, "Please wait before requesting another code")
		fe.RetryAfter = 42

		w := httptest.NewRecorder()
		SendFlowError(w, fe)

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeRateLimited, resp.Code)
		assert.Equal(t, 42, resp.RetryAfter)
		assert.Equal(t, "Please wait before requesting another code", resp.Error)
	})

	t.Run("unwraps a wrapped flow error", func(t *testing.T) {
		wrapped := fmt.Errorf("verify step: %w", NewFlowError(CodeExpired, "Code expired"))

		w := httptest.NewRecorder()
		SendFlowError(w, wrapped)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeExpired, resp.Code)
	})

	t.Run("masks non-flow errors as 500", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendFlowError(w, fmt.Errorf("pq: connection refused"))

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.NotContains(t, resp.Error, "pq:")
	})
}

func TestSendErrorResponse(t *testing.T) {
	t.Run("plain error", func(t *testing.T) {
		w := httptest.NewRecorder()
		SendErrorResponse(w, "Something went wrong", http.StatusInternalServerError, nil)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "Something went wrong", resp.Error)
		assert.Nil(t, resp.Details)
	})

	t.Run("validation details keyed by field", func(t *testing.T) {
		vh := NewValidationHelper()
		invalid := registrationShape{Email: "not-an-email", Name: "V", Phone: "x"}
		validationErr := vh.ValidateStruct(&invalid)
		assert.Error(t, validationErr)

		w := httptest.NewRecorder()
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, validationErr)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, CodeValidation, resp.Code)
		assert.Contains(t, resp.Details, "Email")
		assert.Contains(t, resp.Details, "Name")
		assert.Contains(t, resp.Details, "Phone")
	})
}
