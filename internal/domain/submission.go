package domain

import "time"

// Submission describes an uploaded drawing and its subject. Immutable once stored.
type Submission struct {
	ID           string
	UploaderID   string
	SubjectID    string
	SubjectName  string
	SubjectClass string
	SubjectAge   int
	Notes        string
	ArtifactRef  string
	CreatedAt    time.Time
}
