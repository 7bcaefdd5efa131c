package handlers

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/janseva/gateway/internal/services"
)

// AdminHandler serves the operator surface: sector staff listings for
// managers and officials, session inspection and account disablement for
// system administrators.
type AdminHandler struct {
	db     *sql.DB
	tokens *services.TokenService
}

func NewAdminHandler(db *sql.DB, tokens *services.TokenService) *AdminHandler {
	return &AdminHandler{db: db, tokens: tokens}
}

type staffMember struct {
	ID        int       `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	KycLevel  int       `json:"kycLevel"`
	Disabled  bool      `json:"disabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// SectorStaff lists the staff accounts assigned to a sector
// @Summary List sector staff
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param sector path string true "Sector name"
// @Success 200 {array} object
// @Failure 403 {object} services.ErrorResponse
// @Router /sectors/{sector}/staff [get]
func (h *AdminHandler) SectorStaff(w http.ResponseWriter, r *http.Request) {
	sector := chi.URLParam(r, "sector")

	rows, err := h.db.QueryContext(r.Context(), `
		SELECT id, email, name, role, kyc_level, disabled, created_at
		FROM accounts
		WHERE assigned_sector = $1
		ORDER BY created_at
	`, sector)
	if err != nil {
		services.SendErrorResponse(w, "Staff listing unavailable", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	staff := []staffMember{}
	for rows.Next() {
		var m staffMember
		if err := rows.Scan(&m.ID, &m.Email, &m.Name, &m.Role, &m.KycLevel, &m.Disabled, &m.CreatedAt); err != nil {
			services.SendErrorResponse(w, "Staff listing unavailable", http.StatusInternalServerError, nil)
			return
		}
		staff = append(staff, m)
	}
	if err := rows.Err(); err != nil {
		services.SendErrorResponse(w, "Staff listing unavailable", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sector": sector,
		"staff":  staff,
	})
}

// Sessions reports the live session count for an account
// @Summary Inspect account sessions
// @Tags admin
// @Produce json
// @Security BearerAuth
// @Param accountId path int true "Account id"
// @Success 200 {object} object{accountId=int,activeSessions=int}
// @Router /admin/accounts/{accountId}/sessions [get]
func (h *AdminHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	count, err := h.tokens.SessionCount(r.Context(), accountID)
	if err != nil {
		services.SendErrorResponse(w, "Session lookup failed", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"accountId":      accountID,
		"activeSessions": count,
	})
}

// DisableAccount soft-disables an account and revokes its sessions
// @Summary Disable an account
// @Description Disabled accounts keep their records but can no longer sign in
// @Tags admin
// @Security BearerAuth
// @Param accountId path int true "Account id"
// @Success 204 "Account disabled"
// @Router /admin/accounts/{accountId}/disable [put]
func (h *AdminHandler) DisableAccount(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, true)
}

// ReinstateAccount re-enables a disabled account
// @Summary Reinstate an account
// @Tags admin
// @Security BearerAuth
// @Param accountId path int true "Account id"
// @Success 204 "Account reinstated"
// @Router /admin/accounts/{accountId}/reinstate [put]
func (h *AdminHandler) ReinstateAccount(w http.ResponseWriter, r *http.Request) {
	h.setDisabled(w, r, false)
}

func (h *AdminHandler) setDisabled(w http.ResponseWriter, r *http.Request, disabled bool) {
	accountID, err := strconv.Atoi(chi.URLParam(r, "accountId"))
	if err != nil {
		services.SendErrorResponse(w, "Invalid account id", http.StatusBadRequest, nil)
		return
	}

	res, err := h.db.ExecContext(r.Context(),
		`UPDATE accounts SET disabled = $2, updated_at = NOW() WHERE id = $1`,
		accountID, disabled)
	if err != nil {
		services.SendErrorResponse(w, "Account update failed", http.StatusInternalServerError, nil)
		return
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		services.SendErrorResponse(w, "Account not found", http.StatusNotFound, nil)
		return
	}

	if disabled {
		// A disabled account must not keep refreshing its way back in.
		if err := h.tokens.RevokeAll(r.Context(), accountID); err != nil {
			services.SendErrorResponse(w, "Account update failed", http.StatusInternalServerError, nil)
			return
		}
	}

	w.WriteHeader(http.StatusNoContent)
}
