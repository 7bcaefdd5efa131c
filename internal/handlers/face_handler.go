package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/janseva/gateway/internal/authz"
	"github.com/janseva/gateway/internal/services"
)

type FaceHandler struct {
	service   *services.FaceService
	tokens    *services.TokenService
	validator *services.ValidationHelper
}

func NewFaceHandler(service *services.FaceService, tokens *services.TokenService) *FaceHandler {
	return &FaceHandler{
		service:   service,
		tokens:    tokens,
		validator: services.NewValidationHelper(),
	}
}

type enrollmentSamplePayload struct {
	Pose       string `json:"pose" validate:"required"`
	Image      string `json:"image" validate:"required"` // base64-encoded capture
	CapturedAt int64  `json:"capturedAt" validate:"required"`
}

// Enroll registers the caller's face
// @Summary Enroll face biometrics
// @Description Submit the full pose capture set; a failed sample names its pose for recapture
// @Tags face
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body object{samples=[]object} true "Pose capture set"
// @Success 200 {object} models.FaceTemplate
// @Failure 400 {object} services.ErrorResponse
// @Failure 502 {object} services.ErrorResponse
// @Router /face/register [post]
func (h *FaceHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Samples []enrollmentSamplePayload `json:"samples" validate:"required,dive"`
	}

	// Five raw captures fit comfortably under this cap.
	r.Body = http.MaxBytesReader(w, r.Body, 16*1_048_576)
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

	samples := make([]services.EnrollmentSample, 0, len(req.Samples))
	for _, p := range req.Samples {
		image, err := base64.StdEncoding.DecodeString(p.Image)
		if err != nil {
			services.SendErrorResponse(w, "Invalid image encoding", http.StatusBadRequest, nil)
			return
		}
		samples = append(samples, services.EnrollmentSample{
			Pose:       p.Pose,
			Image:      image,
			CapturedAt: time.UnixMilli(p.CapturedAt),
		})
	}

	template, err := h.service.Enroll(r.Context(), principal.AccountID, samples)
	if err != nil {
		var fe *services.FlowError
		if errors.As(err, &fe) {
			services.SendFlowError(w, fe)
			return
		}
		if errors.Is(err, services.ErrFaceMatcher) {
			services.SendFlowError(w, services.NewFlowError(services.CodeUpstream, "Face processing unavailable"))
			return
		}
		services.SendErrorResponse(w, "Enrollment failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(template)
}

// Verify matches a live sample against the stored template
// @Summary Verify a live face sample
// @Description Requires a face-verification token from the OTP step; the match decision is made server-side
// @Tags face
// @Accept json
// @Produce json
// @Param request body object{faceToken=string,image=string} true "Live sample"
// @Success 200 {object} object{verified=bool,similarity=number}
// @Failure 401 {object} services.ErrorResponse
// @Failure 429 {object} services.ErrorResponse
// @Router /face/verify [post]
func (h *FaceHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FaceToken string `json:"faceToken"`
		Image     string `json:"image" validate:"required"`
	}

	r.Body = http.MaxBytesReader(w, r.Body, 4*1_048_576)
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

	// A missing step-up token is an authentication failure, not a shape
	// problem: the caller has not cleared factors 1+2.
	accountID, _, err := h.tokens.VerifyFaceToken(req.FaceToken)
	if err != nil {
		services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "A valid face verification token is required"))
		return
	}

	if err := h.validator.ValidateStruct(&req); err != nil {
		services.SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	sample, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		services.SendErrorResponse(w, "Invalid image encoding", http.StatusBadRequest, nil)
		return
	}

	result, err := h.service.Verify(r.Context(), accountID, sample)
	if err != nil {
		var fe *services.FlowError
		if errors.As(err, &fe) {
			services.SendFlowError(w, fe)
			return
		}
		if errors.Is(err, services.ErrFaceNotEnrolled) {
			services.SendFlowError(w, services.NewFlowError(services.CodeAuthentication, "Face verification not available for this account"))
			return
		}
		services.SendFlowError(w, services.NewFlowError(services.CodeUpstream, "Face processing unavailable"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"verified":   result.Verified,
		"similarity": result.Similarity,
	})
}

// Status reports enrollment metadata
// @Summary Face enrollment status
// @Tags face
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{enrolled=bool,numSamples=int,updatedAt=string}
// @Router /face/status [get]
func (h *FaceHandler) Status(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	template, err := h.service.Status(r.Context(), principal.AccountID)
	if err != nil {
		if errors.Is(err, services.ErrFaceNotEnrolled) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"enrolled": false})
			return
		}
		services.SendErrorResponse(w, "Status unavailable", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"enrolled":   true,
		"numSamples": template.NumSamples,
		"avgQuality": template.AvgQuality,
		"updatedAt":  template.UpdatedAt,
	})
}

// Disable removes the caller's enrollment
// @Summary Remove face enrollment
// @Tags face
// @Security BearerAuth
// @Success 204 "Enrollment removed"
// @Router /face/enrollment [delete]
func (h *FaceHandler) Disable(w http.ResponseWriter, r *http.Request) {
	principal, ok := authz.PrincipalFromContext(r.Context())
	if !ok {
		services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	if err := h.service.Disable(r.Context(), principal.AccountID); err != nil {
		services.SendErrorResponse(w, "Could not remove enrollment", http.StatusInternalServerError, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
