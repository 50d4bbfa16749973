// Package report records misuse complaints against users and lets admins
// act on them. A validated report may flip the reported user's suspension
// flag; suspension is then enforced at authentication.
package report

import (
	"time"

	"datashare/pkg/domain"
)

// Category classifies a complaint.
type Category string

const (
	CategoryAbuse           Category = "abuse"
	CategorySpam            Category = "spam"
	CategoryFakeIdentity    Category = "fake_identity"
	CategoryPolicyViolation Category = "policy_violation"
	CategoryOther           Category = "other"
)

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	switch c {
	case CategoryAbuse, CategorySpam, CategoryFakeIdentity, CategoryPolicyViolation, CategoryOther:
		return true
	}
	return false
}

// Status is the report review state. Reports start pending and end either
// validated or rejected; both outcomes are terminal.
type Status string

const (
	StatusPending   Status = "pending"
	StatusValidated Status = "validated"
	StatusRejected  Status = "rejected"
)

// Report is one complaint by one user against another.
type Report struct {
	ID         domain.ReportID `json:"id"`
	ReporterID domain.UserID   `json:"reporterId"`
	ReportedID domain.UserID   `json:"reportedId"`
	Category   Category        `json:"category"`
	Reason     string          `json:"reason"`
	Details    string          `json:"details,omitempty"`
	Status     Status          `json:"status"`
	ReviewNote string          `json:"reviewNote,omitempty"`
	ReviewerID *domain.UserID  `json:"reviewerId,omitempty"`
	ReviewedAt *time.Time      `json:"reviewedAt,omitempty"`

	// SuspensionApplied records whether validating this report suspended
	// the reported user.
	SuspensionApplied bool      `json:"suspensionApplied"`
	CreatedAt         time.Time `json:"createdAt"`
}
