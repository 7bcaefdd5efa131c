package models

import (
	"time"

	"github.com/janseva/gateway/internal/authz"
)

// Account is the identity root. Accounts are never hard-deleted; Disabled
// soft-disables the account and preserves the audit trail.
type Account struct {
	ID             int          `json:"id" example:"1"`
	Email          string       `json:"email" example:"user@example.com"`
	Name           string       `json:"name" example:"Varun Patel"`
	Phone          string       `json:"phone" example:"+919812345678"`
	Role           authz.Role   `json:"role" example:"citizen"`
	AssignedSector authz.Sector `json:"assignedSector,omitempty" example:"healthcare"` // only meaningful for sector_manager
	KycLevel       int          `json:"kycLevel" example:"0"`
	FaceEnrolled   bool         `json:"faceEnrolled"`
	AadhaarMasked  string       `json:"aadhaarMasked,omitempty" example:"XXXX-XXXX-1111"`
	Disabled       bool         `json:"-"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}
