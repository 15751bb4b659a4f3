package domain

import "time"

// AuditKind classifies audit entries.
type AuditKind string

const (
	AuditKindSubmitted        AuditKind = "SUBMITTED"
	AuditKindFlagged          AuditKind = "FLAGGED"
	AuditKindAnalysisFallback AuditKind = "ANALYSIS_FALLBACK"
	AuditKindAutoAssigned     AuditKind = "AUTO_ASSIGNED"
	AuditKindManualRequired   AuditKind = "MANUAL_ASSIGNMENT_REQUIRED"
	AuditKindAutoCompleted    AuditKind = "AUTO_COMPLETED"
	AuditKindProcessingFailed AuditKind = "PROCESSING_FAILED"
	AuditKindReviewed         AuditKind = "REVIEWED"
	AuditKindReassigned       AuditKind = "REASSIGNED"
)

// AuditEntry is an immutable record of an automated or human action.
// ActorID is nil for system actions.
type AuditEntry struct {
	ID        string
	CaseID    string
	ActorID   *string
	Kind      AuditKind
	Message   string
	CreatedAt time.Time
}
