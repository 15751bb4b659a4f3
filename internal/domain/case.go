package domain

import "time"

// CaseStatus enumerates lifecycle states for screening cases.
type CaseStatus string

const (
	CaseStatusInitialScreening        CaseStatus = "INITIAL_SCREENING"
	CaseStatusFlaggedForReview        CaseStatus = "FLAGGED_FOR_REVIEW"
	CaseStatusCompletedNoConcerns     CaseStatus = "COMPLETED_NO_CONCERNS"
	CaseStatusCompletedFollowUpNeeded CaseStatus = "COMPLETED_FOLLOW_UP_NEEDED"
	CaseStatusErrorInProcessing       CaseStatus = "ERROR_IN_PROCESSING"
)

// AllCaseStatuses lists every status in display order.
var AllCaseStatuses = []CaseStatus{
	CaseStatusInitialScreening,
	CaseStatusFlaggedForReview,
	CaseStatusCompletedNoConcerns,
	CaseStatusCompletedFollowUpNeeded,
	CaseStatusErrorInProcessing,
}

// Valid reports whether s is a known status.
func (s CaseStatus) Valid() bool {
	for _, candidate := range AllCaseStatuses {
		if s == candidate {
			return true
		}
	}
	return false
}

// IsCompleted reports whether a human or the pipeline closed the case.
func (s CaseStatus) IsCompleted() bool {
	return s == CaseStatusCompletedNoConcerns || s == CaseStatusCompletedFollowUpNeeded
}

// IsOpen reports whether the case still counts towards an assessor's load.
func (s CaseStatus) IsOpen() bool {
	return s == CaseStatusFlaggedForReview
}

// Case tracks the analysis and review of a single submission.
type Case struct {
	ID                 string
	SubmissionID       string
	Status             CaseStatus
	AnalysisResult     *Verdict
	AssignedReviewerID *string
	ReviewerReport     *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	FlaggedAt          *time.Time
	CompletedAt        *time.Time
}

// CaseUpdate carries the fields a single transition writes.
// Nil pointers leave the stored value untouched; SetAssignee controls
// AssignedReviewerID because nil is a meaningful value there.
type CaseUpdate struct {
	Status         CaseStatus
	AnalysisResult *Verdict
	SetAssignee    bool
	AssigneeID     *string
	ReviewerReport *string
	FlaggedAt      *time.Time
	CompletedAt    *time.Time
}

// Apply writes the update onto c.
func (u CaseUpdate) Apply(c *Case) {
	c.Status = u.Status
	if u.AnalysisResult != nil {
		c.AnalysisResult = u.AnalysisResult
	}
	if u.SetAssignee {
		c.AssignedReviewerID = u.AssigneeID
	}
	if u.ReviewerReport != nil {
		c.ReviewerReport = u.ReviewerReport
	}
	if u.FlaggedAt != nil {
		c.FlaggedAt = u.FlaggedAt
	}
	if u.CompletedAt != nil {
		c.CompletedAt = u.CompletedAt
	}
}
