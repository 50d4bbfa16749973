// Package audit records who did what to which resource. Events are emitted
// from domain logic, enriched with request metadata, and fanned out to the
// store and an optional Kafka sink. Nothing on the hot path reads them back.
package audit

import "time"

// Action tags an audit event with the operation that produced it.
type Action string

const (
	ActionUserRegister      Action = "user_register"
	ActionLogin             Action = "login"
	ActionLoginFailed       Action = "login_failed"
	ActionPasswordReset     Action = "password_reset"
	ActionProfileUpdate     Action = "profile_update"
	ActionDeletionRequested Action = "deletion_requested"
	ActionDeletionCanceled  Action = "deletion_canceled"
	ActionUserSuspended     Action = "user_suspended"
	ActionUserReinstated    Action = "user_reinstated"
	ActionUserPurged        Action = "user_purged"

	ActionDataUpload   Action = "data_upload"
	ActionDataUpdate   Action = "data_update"
	ActionDataDelete   Action = "data_delete"
	ActionDataView     Action = "data_view"
	ActionDataDownload Action = "data_download"

	ActionConsentRequested Action = "consent_requested"
	ActionConsentApproved  Action = "consent_approved"
	ActionConsentRejected  Action = "consent_rejected"
	ActionConsentRevoked   Action = "consent_revoked"
	ActionConsentSwept     Action = "consent_swept"

	ActionReportCreated  Action = "report_created"
	ActionReportReviewed Action = "report_reviewed"
)

// Event is emitted from domain logic to capture key actions. Keep it
// transport-agnostic so stores and sinks can fan out.
type Event struct {
	Timestamp    time.Time `json:"timestamp"`
	ActorID      string    `json:"actorId,omitempty"`
	Action       Action    `json:"action"`
	ResourceType string    `json:"resourceType,omitempty"`
	ResourceID   string    `json:"resourceId,omitempty"`
	RequestID    string    `json:"requestId,omitempty"`
	IP           string    `json:"ip,omitempty"`
	UserAgent    string    `json:"userAgent,omitempty"`
	StatusCode   int       `json:"statusCode,omitempty"`
}
