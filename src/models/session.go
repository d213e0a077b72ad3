package models

import (
	"booth/src/types"

	"github.com/google/uuid"
)

type Session struct {
	ID uuid.UUID `gorm:"primarykey;type:uuid;default:gen_random_uuid()" json:"id"`

	BoothID uint                `json:"booth_id"`
	FrameID *uint               `json:"frame_id,omitempty"`
	Status  types.SessionStatus `gorm:"default:pending" json:"status"`

	PaymentID     *uuid.UUID       `json:"payment_id,omitempty"`
	PhotosUrls    types.JSONBArray `gorm:"type:jsonb" json:"photos_urls,omitempty"`
	FinalImageUrl *string          `json:"final_image_url,omitempty"`
	VideoUrl      *string          `json:"video_url,omitempty"`

	Booth   *Booth   `gorm:"foreignKey:booth_id" json:"-"`
	Frame   *Frame   `gorm:"foreignKey:frame_id" json:"frame,omitempty"`
	Payment *Payment `json:"payment,omitempty"`

	types.Timestamps
}
