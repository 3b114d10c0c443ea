package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sipeed/picocrud/pkg/config"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/domain/child"
	"github.com/sipeed/picocrud/pkg/domain/resource"
)

func createSQLiteRepo(t *testing.T) *SQLResourceRepository {
	t.Helper()
	path := filepath.Join(t.TempDir(), "picocrud.db")
	repo, err := OpenSQL(context.Background(), config.DriverSQLite, path)
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := createSQLiteRepo(t)

	res := resource.New("printer", "office")
	res.ContactMedia = append(res.ContactMedia, &child.ContactMedium{ID: "c1", Name: "work", Type: "email"})
	require.NoError(t, repo.Save(ctx, res))

	res.Name = "printer 2"
	require.NoError(t, repo.Save(ctx, res), "second save upserts")

	got, err := repo.FindByID(ctx, res.ID())
	require.NoError(t, err)
	assert.Equal(t, "printer 2", got.Name)
	assert.Equal(t, "work", got.ContactMedia[0].Name)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, repo.Optimize(ctx))
	require.NoError(t, repo.Delete(ctx, res.ID()))
	require.ErrorIs(t, repo.Delete(ctx, res.ID()), domain.ErrDomainNotFound)
	_, err = repo.FindByID(ctx, res.ID())
	require.ErrorIs(t, err, domain.ErrDomainNotFound)
}

func TestSQLiteMigrateIsIdempotent(t *testing.T) {
	repo := createSQLiteRepo(t)
	require.NoError(t, repo.Migrate(context.Background()))
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, config.StorageConfig{Driver: config.DriverFile, Dir: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &FileResourceRepository{}, store)

	_, err = Open(ctx, config.StorageConfig{Driver: "mongo"})
	require.Error(t, err)
}

func newMockRepo(t *testing.T) (*SQLResourceRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLResourceRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestSQLFindByIDWrapsDriverErrors(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM resources WHERE id = ?")).
		WithArgs("p1").
		WillReturnError(errors.New("connection reset"))

	_, err := repo.FindByID(context.Background(), "p1")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
	assert.Contains(t, err.Error(), "connection reset")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLFindByIDDecodesBody(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT body FROM resources WHERE id = ?")).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"body"}).AddRow(`{"id":"p1","name":"printer","status":"active"}`))

	res, err := repo.FindByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.EntityID("p1"), res.ID())
	assert.Equal(t, resource.StatusActive, res.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLDeleteMissingRow(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM resources WHERE id = ?")).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.ErrorIs(t, repo.Delete(context.Background(), "p1"), domain.ErrDomainNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLOptimizeUsesAnalyzeOutsideSQLite(t *testing.T) {
	repo, mock := newMockRepo(t)
	mock.ExpectExec("ANALYZE resources").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Optimize(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}
