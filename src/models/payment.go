package models

import (
	"booth/src/types"

	"github.com/google/uuid"
)

type Payment struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	SessionID         uuid.UUID           `gorm:"uniqueIndex" json:"session_id"`
	ExternalInvoiceID string              `json:"external_invoice_id,omitempty"`
	Amount            int64               `json:"amount"`
	Status            types.PaymentStatus `gorm:"default:pending" json:"status"`

	Session *Session `gorm:"foreignKey:session_id" json:"-"`

	types.Timestamps
}
