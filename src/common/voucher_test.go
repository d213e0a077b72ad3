package common

import (
	"log"
	"testing"
	"time"

	"booth/src/db"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func NewMockDB() (*gorm.DB, sqlmock.Sqlmock) {
	conn, mock, err := sqlmock.New()
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening a stub database connection", err)
	}
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: conn}), &gorm.Config{})
	if err != nil {
		log.Fatalf("An error '%s' was not expected when opening gorm database", err)
	}
	return gormDB, mock
}

func voucherRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "booth_id", "code", "discount_type", "discount_amount",
		"is_active", "expires_at", "max_uses", "used_count",
	})
}

func TestValidateVoucher(t *testing.T) {
	gdb, mock := NewMockDB()
	db.NewDB(gdb)

	t.Run("valid voucher is returned", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "vouchers" WHERE \(?booth_id = \$1 AND LOWER\(code\) = \$2\)?`).
			WithArgs(uint(1), "summer10", 1).
			WillReturnRows(voucherRows().AddRow(5, 1, "summer10", "percentage", 10, true, nil, nil, 0))

		voucher, err := ValidateVoucher("  SUMMER10 ", 1)
		require.NoError(t, err)
		assert.Equal(t, uint(5), voucher.ID)
	})

	t.Run("unknown code", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "vouchers"`).
			WithArgs(uint(1), "nope", 1).
			WillReturnRows(voucherRows())

		_, err := ValidateVoucher("nope", 1)
		assert.ErrorIs(t, err, ErrVoucherNotFound)
	})

	t.Run("empty code short-circuits", func(t *testing.T) {
		_, err := ValidateVoucher("   ", 1)
		assert.ErrorIs(t, err, ErrVoucherNotFound)
	})

	t.Run("inactive wins over expired", func(t *testing.T) {
		expired := time.Now().Add(-time.Hour)
		mock.ExpectQuery(`SELECT \* FROM "vouchers"`).
			WithArgs(uint(1), "old", 1).
			WillReturnRows(voucherRows().AddRow(6, 1, "old", "fixed", 100, false, expired, nil, 0))

		_, err := ValidateVoucher("old", 1)
		assert.ErrorIs(t, err, ErrVoucherInactive)
	})

	t.Run("expired voucher", func(t *testing.T) {
		expired := time.Now().Add(-time.Hour)
		mock.ExpectQuery(`SELECT \* FROM "vouchers"`).
			WithArgs(uint(1), "old", 1).
			WillReturnRows(voucherRows().AddRow(6, 1, "old", "fixed", 100, true, expired, nil, 0))

		_, err := ValidateVoucher("old", 1)
		assert.ErrorIs(t, err, ErrVoucherExpired)
	})

	t.Run("exhausted voucher", func(t *testing.T) {
		mock.ExpectQuery(`SELECT \* FROM "vouchers"`).
			WithArgs(uint(1), "limited", 1).
			WillReturnRows(voucherRows().AddRow(7, 1, "limited", "fixed", 100, true, nil, 3, 3))

		_, err := ValidateVoucher("limited", 1)
		assert.ErrorIs(t, err, ErrVoucherExhausted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConsumeVoucher(t *testing.T) {
	gdb, mock := NewMockDB()

	t.Run("increments under the limit", func(t *testing.T) {
		mock.ExpectExec(`UPDATE vouchers SET used_count = used_count \+ 1`).
			WithArgs(uint(5)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, ConsumeVoucher(gdb, 5))
	})

	t.Run("zero affected rows means the limit was hit", func(t *testing.T) {
		mock.ExpectExec(`UPDATE vouchers SET used_count = used_count \+ 1`).
			WithArgs(uint(5)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.ErrorIs(t, ConsumeVoucher(gdb, 5), ErrVoucherExhausted)
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}
