package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/models"
)

var termRowColumns = []string{"id", "year", "term_number", "start_date", "end_date", "is_current", "created_at", "updated_at"}

func TestTermRepositoryFindCurrent(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewTermRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM academic_terms WHERE is_current = TRUE LIMIT 1")).
		WillReturnRows(sqlmock.NewRows(termRowColumns).AddRow("term-2", 2024, 2, now, now, true, now, now))

	term, err := repo.FindCurrent(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2024 Term 2", term.Label())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryListAscending(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewTermRepository(db)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM academic_terms WHERE 1=1 AND year = $1 ORDER BY year ASC, term_number ASC LIMIT 20 OFFSET 0")).
		WithArgs(2024).
		WillReturnRows(sqlmock.NewRows(termRowColumns).
			AddRow("term-1", 2024, 1, now, now, false, now, now).
			AddRow("term-2", 2024, 2, now, now, true, now, now))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM academic_terms WHERE 1=1 AND year = $1")).
		WithArgs(2024).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	terms, total, err := repo.List(context.Background(), models.TermFilter{Year: 2024, SortOrder: "asc"})
	require.NoError(t, err)
	assert.Len(t, terms, 2)
	assert.Equal(t, 2, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositorySetCurrent(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_terms SET is_current = FALSE")).
		WithArgs(sqlmock.AnyArg(), "term-3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE academic_terms SET is_current = TRUE")).
		WithArgs("term-3", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.SetCurrent(context.Background(), "term-3"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTermRepositoryExistsByPosition(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()
	repo := NewTermRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM academic_terms WHERE year = $1 AND term_number = $2 LIMIT 1")).
		WithArgs(2024, 1).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsByPosition(context.Background(), 2024, 1)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
