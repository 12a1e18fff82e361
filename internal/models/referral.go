package models

import "time"

// Ledger entry directions.
const (
	LedgerDirectionCredit = "credit"
	LedgerDirectionDebit  = "debit"
)

// LedgerEntry is one append-only row in the credit ledger. Entries are
// never mutated; a running balance is the signed sum per doctor.
type LedgerEntry struct {
	ID              string    `json:"id"`
	DoctorID        string    `json:"doctorId"`
	Amount          float64   `json:"amount"`
	Direction       string    `json:"direction"`
	FirstOrderBonus bool      `json:"firstOrderBonus"`
	OrderID         string    `json:"orderId,omitempty"`
	IssuedAt        time.Time `json:"issuedAt"`
}

// Referral code statuses.
const (
	CodeStatusAvailable = "available"
	CodeStatusAssigned  = "assigned"
	CodeStatusRevoked   = "revoked"
	CodeStatusRetired   = "retired"
)

// CodeEvent is one entry in a referral code's append-only history.
type CodeEvent struct {
	Status string    `json:"status"`
	Note   string    `json:"note,omitempty"`
	At     time.Time `json:"at"`
}

// ReferralCode is a pooled code managed for sales reps, distinct from
// the personal code minted on every user account.
type ReferralCode struct {
	ID         string      `json:"id"`
	Code       string      `json:"code"`
	SalesRepID string      `json:"salesRepId,omitempty"`
	Status     string      `json:"status"`
	History    []CodeEvent `json:"history,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
