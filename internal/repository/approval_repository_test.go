package repository

import (
	"context"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/rating-flow-api/internal/models"
)

func newApprovalRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestApprovalRepositoryOpenPending(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO approvals")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.OpenPending(context.Background(), "part-1", models.LevelDepartment, 1)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryDecide(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	decided, err := repo.Decide(context.Background(), "part-1", models.LevelDepartment, 1,
		models.ApprovalStatusApproved, models.CommentMap{"item-1": "well documented"}, "rev-1")
	require.NoError(t, err)
	require.True(t, decided)

	// No pending record for the cycle means it is not that level's turn.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE approvals SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	decided, err = repo.Decide(context.Background(), "part-1", models.LevelUnit, 1,
		models.ApprovalStatusApproved, nil, "rev-2")
	require.NoError(t, err)
	require.False(t, decided)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryListApprovedLevels(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	rows := sqlmock.NewRows([]string{"level"}).
		AddRow("DEPARTMENT").
		AddRow("UNIT")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT level FROM approvals")).
		WithArgs("part-1", "APPROVED").
		WillReturnRows(rows)

	levels, err := repo.ListApprovedLevels(context.Background(), "part-1")
	require.NoError(t, err)
	require.Equal(t, []models.ReviewLevel{models.LevelDepartment, models.LevelUnit}, levels)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApprovalRepositoryListPendingForReviewer(t *testing.T) {
	db, mock, cleanup := newApprovalRepoMock(t)
	defer cleanup()

	repo := NewApprovalRepository(db)
	rows := sqlmock.NewRows([]string{"rating_id", "participant_id", "role"}).
		AddRow("rating-1", "part-1", "DEPARTMENT_REVIEWER").
		AddRow("rating-2", "part-9", "AUTHOR")
	mock.ExpectQuery(regexp.QuoteMeta("FROM approvals a")).
		WithArgs("rev-1", "DEPARTMENT", "DEPARTMENT_REVIEWER", "UNIT", "UNIT_REVIEWER", "AUTHOR", "PENDING", "FILLED", "PENDING", "AUTHOR").
		WillReturnRows(rows)

	actions, err := repo.ListPendingForReviewer(context.Background(), "rev-1")
	require.NoError(t, err)
	require.Len(t, actions, 2)
	require.Equal(t, models.ActionRoleDepartmentReviewer, actions[0].Role)
	require.Equal(t, models.ActionRoleAuthor, actions[1].Role)
	require.NoError(t, mock.ExpectationsWereMet())
}
