package models

import (
	"time"

	"booth/src/types"
)

type Voucher struct {
	ID      uint `gorm:"primarykey" json:"id"`
	BoothID uint `gorm:"uniqueIndex:idx_vouchers_booth_code" json:"booth_id,omitempty"`

	// Code is matched case-insensitively and stored lowercased.
	Code           string             `gorm:"uniqueIndex:idx_vouchers_booth_code" json:"code"`
	DiscountType   types.DiscountType `json:"discount_type"`
	DiscountAmount int64              `json:"discount_amount"`
	IsActive       bool               `gorm:"default:true" json:"is_active"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"`
	MaxUses        *uint              `json:"max_uses,omitempty"`
	UsedCount      uint               `json:"used_count"`

	Booth *Booth `gorm:"foreignKey:booth_id" json:"-"`

	types.Timestamps
}
