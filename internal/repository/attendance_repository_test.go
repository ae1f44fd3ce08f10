package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAttendanceRepositoryStudentRate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAttendanceRepository(db)

	from := time.Date(2024, 7, 15, 0, 0, 0, 0, time.UTC)
	to := time.Date(2024, 12, 20, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE da.tenant_id = $1 AND e.tenant_id = $1 AND e.student_id = $2 AND da.date >= $3 AND da.date <= $4 GROUP BY e.student_id")).
		WithArgs("tenant-a", "stu-1", from, to).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "present", "total"}).AddRow("stu-1", 19, 20))

	summary, err := repo.StudentRate(context.Background(), "tenant-a", "stu-1", &from, &to)
	require.NoError(t, err)
	rate, ok := summary.Rate()
	assert.True(t, ok)
	assert.InDelta(t, 95.0, rate, 1e-9)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryStudentRateWithoutRecords(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM daily_attendance da")).
		WithArgs("tenant-a", "stu-1").
		WillReturnError(sql.ErrNoRows)

	summary, err := NewAttendanceRepository(db).StudentRate(context.Background(), "tenant-a", "stu-1", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "stu-1", summary.StudentID)
	_, ok := summary.Rate()
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttendanceRepositoryRatesByStudents(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("WHERE da.tenant_id = $1 AND e.tenant_id = $1 AND e.student_id = ANY($2) GROUP BY e.student_id")).
		WithArgs("tenant-a", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"student_id", "present", "total"}).
			AddRow("stu-1", 9, 10).
			AddRow("stu-2", 5, 10))

	rates, err := NewAttendanceRepository(db).RatesByStudents(context.Background(), "tenant-a", []string{"stu-1", "stu-2", "stu-3"}, nil, nil)
	require.NoError(t, err)
	assert.Len(t, rates, 2)
	assert.Equal(t, 9, rates["stu-1"].Present)
	require.NoError(t, mock.ExpectationsWereMet())
}
