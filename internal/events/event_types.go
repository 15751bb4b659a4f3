package events

import (
	"time"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventCaseSubmitted         EventType = "case_submitted"
	EventCaseFlagged           EventType = "case_flagged"
	EventAnalysisFallback      EventType = "case_analysis_fallback"
	EventCaseAssigned          EventType = "case_assigned"
	EventCaseAssignmentPending EventType = "case_assignment_pending"
	EventCaseAutoCompleted     EventType = "case_auto_completed"
	EventCaseProcessingFailed  EventType = "case_processing_failed"
	EventCaseReviewed          EventType = "case_reviewed"
	EventCaseReassigned        EventType = "case_reassigned"
)

// Event represents a case transition emitted by services.
// ActorID is nil when the pipeline itself acted.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	CaseID    string      `json:"case_id"`
	ActorID   *string     `json:"actor_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// CaseSubmittedPayload payload.
type CaseSubmittedPayload struct {
	SubmissionID     string `json:"submission_id"`
	SubjectID        string `json:"subject_id"`
	UploaderUsername string `json:"uploader_username"`
}

// CaseFlaggedPayload payload.
type CaseFlaggedPayload struct {
	SubjectID    string  `json:"subject_id"`
	Confidence   float64 `json:"confidence"`
	ModelVersion string  `json:"model_version"`
}

// AnalysisFallbackPayload payload.
type AnalysisFallbackPayload struct {
	SubjectID string `json:"subject_id"`
	Cause     string `json:"cause"`
}

// CaseAssignedPayload payload.
type CaseAssignedPayload struct {
	AssessorID string `json:"assessor_id"`
	OpenCases  int    `json:"open_cases"`
}

// CaseAutoCompletedPayload payload.
type CaseAutoCompletedPayload struct {
	SubjectID    string `json:"subject_id"`
	ModelVersion string `json:"model_version"`
}

// CaseProcessingFailedPayload payload.
type CaseProcessingFailedPayload struct {
	SubjectID string            `json:"subject_id"`
	Error     string            `json:"error"`
	Status    domain.CaseStatus `json:"status"`
}

// CaseReviewedPayload payload.
type CaseReviewedPayload struct {
	OldStatus domain.CaseStatus `json:"old_status"`
	NewStatus domain.CaseStatus `json:"new_status"`
}

// CaseReassignedPayload payload.
type CaseReassignedPayload struct {
	OldAssessorID *string `json:"old_assessor_id,omitempty"`
	NewAssessorID string  `json:"new_assessor_id"`
}
