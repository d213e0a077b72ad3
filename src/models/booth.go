package models

import "booth/src/types"

type Booth struct {
	ID   uint   `gorm:"primarykey" json:"id"`
	Name string `json:"name,omitempty"`

	// BasePrice is in integer minor-currency units.
	BasePrice            int64  `json:"base_price"`
	PaymentBypass        bool   `json:"payment_bypass"`
	CountdownSeconds     int    `gorm:"default:5" json:"countdown_seconds"`
	PreviewSeconds       int    `gorm:"default:5" json:"preview_seconds"`
	ReviewTimeoutSeconds int    `gorm:"default:60" json:"review_timeout_seconds"`
	PrintCopies          int    `gorm:"default:1" json:"print_copies"`
	LocalBackupDir       string `json:"local_backup_dir,omitempty"`

	Frames   []*Frame   `json:"frames,omitempty"`
	Vouchers []*Voucher `json:"vouchers,omitempty"`

	types.Timestamps
}

func (b *Booth) Config() types.BoothConfig {
	return types.BoothConfig{
		BasePrice:            b.BasePrice,
		PaymentBypass:        b.PaymentBypass,
		CountdownSeconds:     b.CountdownSeconds,
		PreviewSeconds:       b.PreviewSeconds,
		ReviewTimeoutSeconds: b.ReviewTimeoutSeconds,
		PrintCopies:          b.PrintCopies,
		LocalBackupDir:       b.LocalBackupDir,
	}
}
