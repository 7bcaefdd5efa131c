package models

import "time"

// RefreshSession is one device/browser login. The opaque refresh token is
// stored hashed; at most 5 live sessions exist per account and inserting a
// 6th evicts the oldest.
type RefreshSession struct {
	ID        int       `json:"id"`
	AccountID int       `json:"accountId"`
	TokenHash string    `json:"-"`
	Device    string    `json:"device"`
	IP        string    `json:"ip"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// FaceTemplate is the stored enrollment artifact. The embedding itself is
// encrypted at rest and only handled decrypted inside the face service.
type FaceTemplate struct {
	AccountID  int       `json:"accountId"`
	Dimension  int       `json:"dimension"`
	NumSamples int       `json:"numSamples"`
	AvgQuality float64   `json:"avgQuality"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// KycChallenge ties a masked government ID to a one-shot mobile OTP flow.
// It lives in Redis under its request id and is consumed on verification
// or expiry; it holds only a lookup key to the account, never account state.
type KycChallenge struct {
	RequestID     string    `json:"requestId"`
	AccountID     int       `json:"accountId"`
	AadhaarHash   string    `json:"aadhaarHash"`
	AadhaarMasked string    `json:"aadhaarMasked"`
	MaskedMobile  string    `json:"maskedMobile"`
	ExpiresAt     time.Time `json:"expiresAt"`
}
