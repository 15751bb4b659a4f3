package domain

import "time"

// Job is the in-memory work item asking the pipeline to analyze one case.
type Job struct {
	CaseID       string
	SubmissionID string
	ArtifactRef  string
	SubjectID    string
	EnqueuedAt   time.Time
}
