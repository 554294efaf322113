package database

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithTx(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name    string
		setup   func(mock sqlmock.Sqlmock)
		fn      func(*sqlx.Tx) error
		wantErr error
	}{
		{
			name: "commit on success",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec("UPDATE users").WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			},
			fn: func(tx *sqlx.Tx) error {
				_, err := tx.Exec("UPDATE users SET language = 'en'")
				return err
			},
		},
		{
			name: "rollback keeps the sentinel",
			setup: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectRollback()
			},
			fn:      func(*sqlx.Tx) error { return errBoom },
			wantErr: errBoom,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer raw.Close()
			tt.setup(mock)

			err = WithTx(context.Background(), sqlx.NewDb(raw, "sqlmock"), nil, tt.fn)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAppliedBetween(t *testing.T) {
	files := []string{"000001_init.up.sql", "000002_operations_index.up.sql", "junk.up.sql"}
	assert.Equal(t, []string{"000002_operations_index.up.sql"}, appliedBetween(files, 1, 2))
	assert.Empty(t, appliedBetween(files, 2, 2))
}

func TestConfigURL(t *testing.T) {
	cfg := Config{Host: "db", Name: "artbot", User: "bot", Password: "p@ss"}
	require.NoError(t, cfg.Normalize())
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/artbot?sslmode=disable", cfg.URL())
	assert.Contains(t, cfg.KeywordDSN(), "dbname=artbot")
	assert.Equal(t, 10, cfg.MaxConnections)
}
