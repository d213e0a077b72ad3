package common

import (
	"booth/src/db"
	"booth/src/models"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"
)

var (
	ErrVoucherNotFound  = errors.New("voucher not found")
	ErrVoucherInactive  = errors.New("voucher is not active")
	ErrVoucherExpired   = errors.New("voucher has expired")
	ErrVoucherExhausted = errors.New("voucher usage limit reached")
)

// ValidateVoucher looks a code up for the booth and checks it against
// activity, expiry and usage-limit rules, in that priority order. The code
// match is case-insensitive. A valid result is advisory: the caller still
// has to go through ConsumeVoucher at the point of session creation.
func ValidateVoucher(code string, boothID uint) (*models.Voucher, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil, ErrVoucherNotFound
	}
	db := db.GetDb()
	var voucher models.Voucher
	if err := db.
		Model(&models.Voucher{}).
		Where("booth_id = ? AND LOWER(code) = ?", boothID, code).
		First(&voucher).
		Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVoucherNotFound
		}
		return nil, err
	}
	if !voucher.IsActive {
		return nil, ErrVoucherInactive
	}
	if voucher.ExpiresAt != nil && voucher.ExpiresAt.Before(time.Now()) {
		return nil, ErrVoucherExpired
	}
	if voucher.MaxUses != nil && voucher.UsedCount >= *voucher.MaxUses {
		return nil, ErrVoucherExhausted
	}
	return &voucher, nil
}

// ConsumeVoucher increments used_count with a single conditional UPDATE so
// two customers racing on the last use cannot both win. Zero affected rows
// signals a late rejection.
func ConsumeVoucher(tx *gorm.DB, voucherID uint) error {
	res := tx.Exec(
		`UPDATE vouchers SET used_count = used_count + 1, updated_at = NOW() WHERE id = ? AND (max_uses IS NULL OR used_count < max_uses)`,
		voucherID,
	)
	if res.Error != nil {
		log.Printf("[voucher] Error consuming voucher %d: %s\n", voucherID, res.Error.Error())
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrVoucherExhausted
	}
	return nil
}
