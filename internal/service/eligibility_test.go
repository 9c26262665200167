package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rating-flow-api/internal/models"
	appErrors "github.com/noah-isme/rating-flow-api/pkg/errors"
)

func strPtr(s string) *string { return &s }

func eligibilityRespondents() []models.User {
	return []models.User{
		{ID: "staff-1", Role: models.RoleStaff, DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
		{ID: "staff-2", Role: models.RoleStaff, DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
		{ID: "staff-3", Role: models.RoleStaff, DepartmentID: strPtr("dept-b"), UnitID: nil},
	}
}

func TestResolveEligibilityUnionsScopes(t *testing.T) {
	scope := ResolveEligibility(eligibilityRespondents())
	require.Len(t, scope.Departments, 2)
	require.Len(t, scope.Units, 1)
	require.True(t, scope.HasDepartment("dept-a"))
	require.True(t, scope.HasDepartment("dept-b"))
	require.True(t, scope.HasUnit("unit-1"))
	require.False(t, scope.HasUnit("unit-2"))
}

func TestResolveEligibilityEmptyRespondents(t *testing.T) {
	scope := ResolveEligibility(nil)
	require.Empty(t, scope.Departments)
	require.Empty(t, scope.Units)
}

func TestValidateReviewerAssignmentAccepts(t *testing.T) {
	respondents := eligibilityRespondents()
	users := map[string]models.User{
		"rev-1": {ID: "rev-1", DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
		"rev-2": {ID: "rev-2", DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
	}
	assignment := models.ReviewerAssignment{
		DepartmentReviewers: map[string]string{"dept-a": "rev-1"},
		UnitReviewers:       map[string]string{"unit-1": "rev-2"},
	}
	require.NoError(t, ValidateReviewerAssignment(assignment, respondents, users))
}

func TestValidateReviewerAssignmentIneligibleScope(t *testing.T) {
	respondents := eligibilityRespondents()
	users := map[string]models.User{
		"rev-1": {ID: "rev-1", DepartmentID: strPtr("dept-z")},
	}
	assignment := models.ReviewerAssignment{
		DepartmentReviewers: map[string]string{"dept-z": "rev-1"},
	}
	err := ValidateReviewerAssignment(assignment, respondents, users)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrIneligibleReviewer.Code, appErr.Code)
}

func TestValidateReviewerAssignmentReviewerOutsideDepartment(t *testing.T) {
	respondents := eligibilityRespondents()
	users := map[string]models.User{
		"rev-1": {ID: "rev-1", DepartmentID: strPtr("dept-b")},
	}
	assignment := models.ReviewerAssignment{
		DepartmentReviewers: map[string]string{"dept-a": "rev-1"},
	}
	err := ValidateReviewerAssignment(assignment, respondents, users)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrIneligibleReviewer.Code, appErr.Code)
}

func TestValidateReviewerCandidateDuplicateScope(t *testing.T) {
	scope := ResolveEligibility(eligibilityRespondents())
	candidate := models.User{ID: "rev-2", DepartmentID: strPtr("dept-a")}
	assigned := map[string]string{"dept-a": "rev-1"}
	err := ValidateReviewerCandidate(candidate, models.LevelDepartment, "dept-a", scope, assigned, map[string]struct{}{})
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrDuplicateReviewer.Code, appErr.Code)
}

func TestValidateReviewerCandidateSelfReview(t *testing.T) {
	scope := ResolveEligibility(eligibilityRespondents())
	candidate := models.User{ID: "staff-1", DepartmentID: strPtr("dept-a")}
	respondentIDs := map[string]struct{}{"staff-1": {}}
	err := ValidateReviewerCandidate(candidate, models.LevelDepartment, "dept-a", scope, nil, respondentIDs)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrSelfReview.Code, appErr.Code)
}

func TestValidateReviewerAssignmentDualRoleForSameRespondent(t *testing.T) {
	respondents := eligibilityRespondents()
	users := map[string]models.User{
		"rev-1": {ID: "rev-1", DepartmentID: strPtr("dept-a"), UnitID: strPtr("unit-1")},
	}
	assignment := models.ReviewerAssignment{
		DepartmentReviewers: map[string]string{"dept-a": "rev-1"},
		UnitReviewers:       map[string]string{"unit-1": "rev-1"},
	}
	err := ValidateReviewerAssignment(assignment, respondents, users)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, appErrors.ErrDuplicateReviewer.Code, appErr.Code)
}
