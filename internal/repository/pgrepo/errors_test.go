package pgrepo

import (
	"errors"
	"fmt"
	"testing"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestConvertErr(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		wantErr error
		wantMsg string
	}{
		{
			name:    "no rows",
			err:     fmt.Errorf("scan: %w", pgx.ErrNoRows),
			wantErr: domain.ErrRecordNotFound,
			wantMsg: "[repository/lock user 1] record not found",
		},
		{
			name:    "unique violation",
			err:     &pgconn.PgError{Code: uniqueViolationCode, Message: "duplicate"},
			wantErr: domain.ErrDuplicateKey,
		},
		{
			name:    "check violation",
			err:     &pgconn.PgError{Code: checkViolationCode, ConstraintName: "users_balance_check"},
			wantErr: domain.ErrUnknown,
			wantMsg: "[repository/lock user 1] unknown error: constraint users_balance_check violated",
		},
		{
			name:    "foreign key violation",
			err:     &pgconn.PgError{Code: foreignKeyCode, ConstraintName: "orders_buyer_id_fkey"},
			wantErr: domain.ErrRecordNotFound,
			wantMsg: "[repository/lock user 1] record not found: constraint orders_buyer_id_fkey violated",
		},
		{
			name:    "other",
			err:     errors.New("conn reset"),
			wantErr: domain.ErrUnknown,
			wantMsg: "[repository/lock user 1] unknown error: conn reset",
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := convertErr(c.err, "lock user %d", 1)
			require.ErrorIs(t, err, c.wantErr)
			if c.wantMsg != "" {
				require.EqualError(t, err, c.wantMsg)
			}
		})
	}

	require.NoError(t, convertErr(nil, "noop"))
}
