package store

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestConvertDBError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"nil passes through", nil, nil},
		{"no rows becomes not found", sql.ErrNoRows, ErrNotFound},
		{"wrapped no rows becomes not found", fmt.Errorf("scan: %w", sql.ErrNoRows), ErrNotFound},
		{
			"unique violation",
			&pgconn.PgError{Code: "23505", ConstraintName: "resources_account_id_type_key_key"},
			ErrUniqueViolation,
		},
		{
			"foreign key violation",
			&pgconn.PgError{Code: "23503", ConstraintName: "resource_fields_value_id_fkey"},
			ErrForeignKeyViolation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertDBError(tt.in)
			if tt.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.want)
		})
	}
}

func TestConvertDBErrorLeavesOtherErrorsAlone(t *testing.T) {
	err := fmt.Errorf("connection refused")
	assert.Equal(t, err, convertDBError(err))
}

func TestUniqueViolationCarriesConstraintName(t *testing.T) {
	err := convertDBError(&pgconn.PgError{Code: "23505", ConstraintName: "resources_key"})
	assert.Contains(t, err.Error(), "resources_key")
}
