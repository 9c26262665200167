package service

import (
	"fmt"

	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

// ResolveEligibility computes the departments and units represented among the
// selected respondents. Reviewer assignments are only valid against this
// scope. Pure function: empty respondent sets yield empty scopes.
func ResolveEligibility(respondents []models.User) models.EligibilityScope {
	scope := models.EligibilityScope{
		Departments: make(map[string]struct{}),
		Units:       make(map[string]struct{}),
	}
	for _, respondent := range respondents {
		if respondent.DepartmentID != nil && *respondent.DepartmentID != "" {
			scope.Departments[*respondent.DepartmentID] = struct{}{}
		}
		if respondent.UnitID != nil && *respondent.UnitID != "" {
			scope.Units[*respondent.UnitID] = struct{}{}
		}
	}
	return scope
}

// ValidateReviewerCandidate checks one candidate against the eligible scope
// and the reviewers already assigned for it. assigned maps scope ID (the
// department or unit the candidate would review) to the reviewer already
// holding it.
func ValidateReviewerCandidate(candidate models.User, level models.ReviewLevel, scopeID string, scope models.EligibilityScope, assigned map[string]string, respondentIDs map[string]struct{}) error {
	switch level {
	case models.LevelDepartment:
		if !scope.HasDepartment(scopeID) {
			return appErrors.Clone(appErrors.ErrIneligibleReviewer, fmt.Sprintf("department %s has no selected respondents", scopeID))
		}
		if candidate.DepartmentID == nil || *candidate.DepartmentID != scopeID {
			return appErrors.Clone(appErrors.ErrIneligibleReviewer, fmt.Sprintf("reviewer %s does not belong to department %s", candidate.ID, scopeID))
		}
	case models.LevelUnit:
		if !scope.HasUnit(scopeID) {
			return appErrors.Clone(appErrors.ErrIneligibleReviewer, fmt.Sprintf("unit %s has no selected respondents", scopeID))
		}
		if candidate.UnitID == nil || *candidate.UnitID != scopeID {
			return appErrors.Clone(appErrors.ErrIneligibleReviewer, fmt.Sprintf("reviewer %s does not belong to unit %s", candidate.ID, scopeID))
		}
	default:
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("level %s does not take reviewer assignments", level))
	}
	if existing, ok := assigned[scopeID]; ok && existing != candidate.ID {
		return appErrors.Clone(appErrors.ErrDuplicateReviewer, fmt.Sprintf("scope %s already has reviewer %s", scopeID, existing))
	}
	if _, ok := respondentIDs[candidate.ID]; ok {
		return appErrors.Clone(appErrors.ErrSelfReview, fmt.Sprintf("reviewer %s is a respondent of this rating", candidate.ID))
	}
	return nil
}

// ValidateReviewerAssignment validates a whole assignment map against the
// respondent scope. users must contain every referenced reviewer. Invalid
// assignments never persist: the caller rejects the rating mutation on error.
func ValidateReviewerAssignment(assignment models.ReviewerAssignment, respondents []models.User, users map[string]models.User) error {
	scope := ResolveEligibility(respondents)
	respondentIDs := make(map[string]struct{}, len(respondents))
	for _, respondent := range respondents {
		respondentIDs[respondent.ID] = struct{}{}
	}

	seen := make(map[string]string)
	for departmentID, reviewerID := range assignment.DepartmentReviewers {
		candidate, ok := users[reviewerID]
		if !ok {
			return appErrors.Clone(appErrors.ErrIneligibleReviewer, fmt.Sprintf("reviewer %s not found", reviewerID))
		}
		if err := ValidateReviewerCandidate(candidate, models.LevelDepartment, departmentID, scope, seen, respondentIDs); err != nil {
			return err
		}
		seen[departmentID] = reviewerID
	}
	seen = make(map[string]string)
	for unitID, reviewerID := range assignment.UnitReviewers {
		candidate, ok := users[reviewerID]
		if !ok {
			return appErrors.Clone(appErrors.ErrIneligibleReviewer, fmt.Sprintf("reviewer %s not found", reviewerID))
		}
		if err := ValidateReviewerCandidate(candidate, models.LevelUnit, unitID, scope, seen, respondentIDs); err != nil {
			return err
		}
		seen[unitID] = reviewerID
	}

	// A user may hold the department role or the unit role for a respondent,
	// never both in the same chain.
	for _, respondent := range respondents {
		departmentReviewer, hasDepartment := assignment.ReviewerFor(models.LevelDepartment, derefOrEmpty(respondent.DepartmentID), "")
		unitReviewer, hasUnit := assignment.ReviewerFor(models.LevelUnit, "", derefOrEmpty(respondent.UnitID))
		if hasDepartment && hasUnit && departmentReviewer == unitReviewer {
			return appErrors.Clone(appErrors.ErrDuplicateReviewer, fmt.Sprintf("reviewer %s holds both department and unit roles for respondent %s", departmentReviewer, respondent.ID))
		}
	}
	return nil
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
