package models

import "booth/src/types"

type Frame struct {
	ID      uint   `gorm:"primarykey" json:"id"`
	BoothID uint   `json:"booth_id,omitempty"`
	Name    string `json:"name,omitempty"`

	ImageURL     string           `json:"image_url,omitempty"`
	Slots        types.PhotoSlots `gorm:"type:jsonb" json:"slots,omitempty"`
	CanvasWidth  int              `json:"canvas_width,omitempty"`
	CanvasHeight int              `json:"canvas_height,omitempty"`
	IsActive     bool             `gorm:"default:true" json:"is_active"`

	Booth *Booth `gorm:"foreignKey:booth_id" json:"-"`

	types.Timestamps
}
