// Package domain holds typed identifiers and the role enum shared across
// services. Distinct ID types keep a consent ID from ever being passed where
// a user ID is expected; the compiler enforces what code review would miss.
package domain

import (
	"github.com/google/uuid"

	dErrors "datashare/pkg/domain-errors"
)

type (
	// UserID identifies a user account.
	UserID uuid.UUID
	// DataID identifies an uploaded data record.
	DataID uuid.UUID
	// ConsentID identifies one row in the consent ledger.
	ConsentID uuid.UUID
	// ReportID identifies a moderation report.
	ReportID uuid.UUID
)

// NewUserID returns a fresh random user ID.
func NewUserID() UserID { return UserID(uuid.New()) }

// NewDataID returns a fresh random data record ID.
func NewDataID() DataID { return DataID(uuid.New()) }

// NewConsentID returns a fresh random consent ID.
func NewConsentID() ConsentID { return ConsentID(uuid.New()) }

// NewReportID returns a fresh random report ID.
func NewReportID() ReportID { return ReportID(uuid.New()) }

func parse(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is required")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must be a valid UUID")
	}
	if id == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id must not be the nil UUID")
	}
	return id, nil
}

// ParseUserID validates s as a non-nil UUID and returns it as a UserID.
func ParseUserID(s string) (UserID, error) {
	id, err := parse(s)
	return UserID(id), err
}

// ParseDataID validates s as a non-nil UUID and returns it as a DataID.
func ParseDataID(s string) (DataID, error) {
	id, err := parse(s)
	return DataID(id), err
}

// ParseConsentID validates s as a non-nil UUID and returns it as a ConsentID.
func ParseConsentID(s string) (ConsentID, error) {
	id, err := parse(s)
	return ConsentID(id), err
}

// ParseReportID validates s as a non-nil UUID and returns it as a ReportID.
func ParseReportID(s string) (ReportID, error) {
	id, err := parse(s)
	return ReportID(id), err
}

func (id UserID) String() string    { return uuid.UUID(id).String() }
func (id DataID) String() string    { return uuid.UUID(id).String() }
func (id ConsentID) String() string { return uuid.UUID(id).String() }
func (id ReportID) String() string  { return uuid.UUID(id).String() }

func (id UserID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id DataID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ConsentID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
func (id ReportID) IsNil() bool  { return uuid.UUID(id) == uuid.Nil }

func (id UserID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id DataID) MarshalText() ([]byte, error)    { return []byte(id.String()), nil }
func (id ConsentID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }
func (id ReportID) MarshalText() ([]byte, error)  { return []byte(id.String()), nil }

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *DataID) UnmarshalText(b []byte) error {
	parsed, err := ParseDataID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ConsentID) UnmarshalText(b []byte) error {
	parsed, err := ParseConsentID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func (id *ReportID) UnmarshalText(b []byte) error {
	parsed, err := ParseReportID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
