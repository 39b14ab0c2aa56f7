package database

import (
	"database/sql"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return db, mock
}

func TestEnsureDatabase(t *testing.T) {
	query := regexp.QuoteMeta("SELECT true FROM pg_database WHERE datname = $1")

	tests := []struct {
		name       string
		owner      string
		exists     bool
		wantCreate string
	}{
		{name: "exists", exists: true},
		{name: "missing", wantCreate: `CREATE DATABASE "hazira"`},
		{name: "missing with owner", owner: "app", wantCreate: `CREATE DATABASE "hazira" OWNER "app"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)

			rows := sqlmock.NewRows([]string{"exists"})
			if tt.exists {
				rows.AddRow(true)
			}
			mock.ExpectQuery(query).WithArgs("hazira").WillReturnRows(rows)
			if tt.wantCreate != "" {
				mock.ExpectExec(regexp.QuoteMeta(tt.wantCreate)).WillReturnResult(sqlmock.NewResult(0, 0))
			}

			assert.NoError(t, ensureDatabase(db, "hazira", tt.owner))
		})
	}
}

func TestEnsureRole(t *testing.T) {
	query := regexp.QuoteMeta("SELECT true FROM pg_roles WHERE rolname = $1")

	t.Run("no app role configured", func(t *testing.T) {
		db, _ := newMockDB(t)
		assert.NoError(t, ensureRole(db, "", ""))
	})

	t.Run("exists", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(query).WithArgs("hazira").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		assert.NoError(t, ensureRole(db, "hazira", "secret"))
	})

	t.Run("quotes credentials", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(query).WithArgs("hazira").WillReturnRows(sqlmock.NewRows([]string{"exists"}))
		mock.ExpectExec(regexp.QuoteMeta(`CREATE ROLE "hazira" LOGIN CREATEDB ENCRYPTED PASSWORD 'it''s'`)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, ensureRole(db, "hazira", "it's"))
	})

	t.Run("lookup failure", func(t *testing.T) {
		db, mock := newMockDB(t)
		mock.ExpectQuery(query).WithArgs("hazira").WillReturnError(errors.New("connection reset"))

		err := ensureRole(db, "hazira", "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "looking up role")
	})
}
