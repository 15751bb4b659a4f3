package service

import "github.com/dsi-platform/screening-service/internal/domain"

// Completed cases may be re-reviewed to correct a verdict; nothing returns to
// initial screening or leaves the error state.
var allowedTransitions = map[domain.CaseStatus][]domain.CaseStatus{
	domain.CaseStatusInitialScreening:        {domain.CaseStatusFlaggedForReview, domain.CaseStatusCompletedNoConcerns, domain.CaseStatusErrorInProcessing},
	domain.CaseStatusFlaggedForReview:        {domain.CaseStatusCompletedNoConcerns, domain.CaseStatusCompletedFollowUpNeeded, domain.CaseStatusErrorInProcessing},
	domain.CaseStatusCompletedNoConcerns:     {domain.CaseStatusCompletedNoConcerns, domain.CaseStatusCompletedFollowUpNeeded, domain.CaseStatusErrorInProcessing},
	domain.CaseStatusCompletedFollowUpNeeded: {domain.CaseStatusCompletedNoConcerns, domain.CaseStatusCompletedFollowUpNeeded, domain.CaseStatusErrorInProcessing},
	domain.CaseStatusErrorInProcessing:       {},
}

func isValidTransition(current, next domain.CaseStatus) bool {
	for _, candidate := range allowedTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// reviewSources lists the statuses a human review may start from.
var reviewSources = []domain.CaseStatus{
	domain.CaseStatusFlaggedForReview,
	domain.CaseStatusCompletedNoConcerns,
	domain.CaseStatusCompletedFollowUpNeeded,
}

func canReview(current, next domain.CaseStatus) bool {
	if !next.IsCompleted() {
		return false
	}
	for _, source := range reviewSources {
		if source == current {
			return isValidTransition(current, next)
		}
	}
	return false
}
