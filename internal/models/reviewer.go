package models

// EligibilityScope lists the departments and units represented among a
// rating's selected respondents. Reviewers must come from this scope.
type EligibilityScope struct {
	Departments map[string]struct{} `json:"departments"`
	Units       map[string]struct{} `json:"units"`
}

// HasDepartment reports whether the department is in scope.
func (s EligibilityScope) HasDepartment(id string) bool {
	_, ok := s.Departments[id]
	return ok
}

// HasUnit reports whether the unit is in scope.
func (s EligibilityScope) HasUnit(id string) bool {
	_, ok := s.Units[id]
	return ok
}

// ReviewerAssignment maps each in-scope department and unit to the single
// reviewer authorized for it within one rating.
type ReviewerAssignment struct {
	DepartmentReviewers map[string]string `json:"department_reviewers"`
	UnitReviewers       map[string]string `json:"unit_reviewers"`
}

// NewReviewerAssignment returns an empty assignment with allocated maps.
func NewReviewerAssignment() ReviewerAssignment {
	return ReviewerAssignment{
		DepartmentReviewers: make(map[string]string),
		UnitReviewers:       make(map[string]string),
	}
}

// ReviewerFor returns the reviewer assigned for the respondent's department
// or unit at the given level, if any.
func (a ReviewerAssignment) ReviewerFor(level ReviewLevel, departmentID, unitID string) (string, bool) {
	switch level {
	case LevelDepartment:
		id, ok := a.DepartmentReviewers[departmentID]
		return id, ok && id != ""
	case LevelUnit:
		id, ok := a.UnitReviewers[unitID]
		return id, ok && id != ""
	default:
		return "", false
	}
}
