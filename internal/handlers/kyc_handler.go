package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/services"
)

type KycHandler struct {
	service   *services.KycService
	validator *services.ValidationHelper
}

func NewKycHandler(service *services.KycService) *KycHandler {
	return &KycHandler{
		service:   service,
		validator: services.NewValidationHelper(),
	}
}

// Initiate starts an identity verification
// @Summary Start ID verification
// @Description Validate the ID number and send a one-time code to the linked mobile
// @Tags kyc
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{idNumber=string} true "Verification request"
// @Success 200 {object} object{requestId=string,maskedMobile=string}
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /kyc/initiate [post]
func (h *KycHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		IDNumber string `json:"idNumber" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	challenge, err := h.service.Initiate(r.Context(), principal.AccountID, req.IDNumber)
	if err != nil {
		var fe *services.FlowError
		if errors.As(err, &fe) {
			services.SendFlowError(w, fe)
			return
		}
		if errors.Is(err, services.ErrKycProvider) {
			services.SendFlowError(w, services.NewFlowError(services.CodeUpstream, "Verification provider unavailable"))
			return
		}
		services.SendErrorResponse(w, "Verification could not be started", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"requestId":    challenge.RequestID,
		"idMasked":     challenge.AadhaarMasked,
		"maskedMobile": challenge.MaskedMobile,
	})
}

// Verify completes an identity verification
// @Summary Complete ID verification
// @Description Verify the mobile code and match the declared name against the registered one
// @Tags kyc
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{requestId=string,idNumber=string,name=string,otp=string} true "Verification completion"
// @Success 200 {object} services.KycResult
// @Failure 401 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /kyc/verify [post]
func (h *KycHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if _, ok := authz.PrincipalFromContext(r.Context()); !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		RequestID string `json:"requestId" validate:"required"`
		IDNumber  string `json:"idNumber" validate:"required"`
		Name      string `json:"name" validate:"required,min=2"`
		OTP       string `json:"otp" validate:"required,numeric"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		services.SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		services.SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	result, err := h.service.Verify(r.Context(), req.RequestID, req.IDNumber, req.Name, req.OTP)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrKycChallengeNotFound):
			services.SendFlowError(w, services.NewFlowError(services.CodeExpired, "Verification request expired or already used"))
		case errors.Is(err, services.ErrKycIDMismatch):
			services.SendFlowError(w, services.NewFlowError(services.CodeValidation, "ID number does not match the request"))
		case errors.Is(err, services.ErrKycOtpRejected):
			services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Invalid verification code"))
		case errors.Is(err, services.ErrKycProvider):
			services.SendFlowError(w, services.NewFlowError(services.CodeUpstream, "Verification provider unavailable"))
		default:
			services.SendErrorResponse(w, "Verification failed", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

// Status reports the caller's verification level
// @Summary Verification status
// @Tags kyc
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{kycLevel=int,idMasked=string}
// @Router /kyc/status [get]
func (h *KycHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	level, masked, err := h.service.Status(r.Context(), principal.AccountID)
	if err != nil {
		services.SendErrorResponse(w, "Status unavailable", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"kycLevel": level,
		"idMasked": masked,
	})
}
