package dto

import (
	"time"

	"github.com/dsi-platform/screening-service/internal/domain"
)

// SubmitDrawingRequest payload.
type SubmitDrawingRequest struct {
	SubjectID    string `json:"subject_id"`
	SubjectName  string `json:"subject_name"`
	SubjectClass string `json:"subject_class"`
	SubjectAge   int    `json:"subject_age"`
	Notes        string `json:"notes"`
	ArtifactRef  string `json:"artifact_ref"`
}

// SubmissionResponse describes an uploaded drawing.
type SubmissionResponse struct {
	ID           string    `json:"id"`
	UploaderID   string    `json:"uploader_id"`
	SubjectID    string    `json:"subject_id"`
	SubjectName  string    `json:"subject_name,omitempty"`
	SubjectClass string    `json:"subject_class,omitempty"`
	SubjectAge   int       `json:"subject_age,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	ArtifactRef  string    `json:"artifact_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

// CaseResponse describes a screening case.
type CaseResponse struct {
	ID                 string            `json:"id"`
	SubmissionID       string            `json:"submission_id"`
	Status             domain.CaseStatus `json:"status"`
	AnalysisResult     *domain.Verdict   `json:"analysis_result"`
	AssignedReviewerID *string           `json:"assigned_reviewer_id"`
	ReviewerReport     *string           `json:"reviewer_report"`
	CreatedAt          time.Time         `json:"created_at"`
	UpdatedAt          time.Time         `json:"updated_at"`
	FlaggedAt          *time.Time        `json:"flagged_at"`
	CompletedAt        *time.Time        `json:"completed_at"`
}

// SubmissionWithCase pairs a submission with the state of its case.
type SubmissionWithCase struct {
	Submission SubmissionResponse `json:"submission"`
	Case       *CaseResponse      `json:"case"`
}

// CaseDetailResponse is a case together with its submission.
type CaseDetailResponse struct {
	CaseResponse
	Submission *SubmissionResponse `json:"submission"`
}

// ReviewRequest payload for an assessor verdict.
type ReviewRequest struct {
	Report      string            `json:"report"`
	FinalStatus domain.CaseStatus `json:"final_status"`
}

// AssignRequest payload for manual reassignment.
type AssignRequest struct {
	AssessorID string `json:"assessor_id"`
}

// AuditEntryResponse is one line of a case's audit trail.
type AuditEntryResponse struct {
	ID        string           `json:"id"`
	CaseID    string           `json:"case_id"`
	ActorID   *string          `json:"actor_id"`
	Kind      domain.AuditKind `json:"kind"`
	Message   string           `json:"message"`
	CreatedAt time.Time        `json:"created_at"`
}

// StatsResponse summarizes the pipeline.
type StatsResponse struct {
	Total       int                       `json:"total"`
	ByStatus    map[domain.CaseStatus]int `json:"by_status"`
	QueueDepth  int                       `json:"queue_depth"`
	WorkerState string                    `json:"worker_state"`
}
