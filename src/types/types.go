package types

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"
)

type Timestamps struct {
	CreatedAt time.Time      `gorm:"autoCreateTime:nano" json:"created_at,omitempty"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime:nano" json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty,omitnil"`
}

type JSONB map[string]any
type JSONBArray []any

func (a JSONB) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONB) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

func (a JSONBArray) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *JSONBArray) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

// PhotoSlot describes one rectangular region of a Frame. Coordinates are
// normalized to a 0..1000 grid so slot geometry is independent of the
// canvas resolution the frame renders at.
type PhotoSlot struct {
	X        int     `json:"x" binding:"min=0,max=1000"`
	Y        int     `json:"y" binding:"min=0,max=1000"`
	Width    int     `json:"width" binding:"required,min=1,max=1000"`
	Height   int     `json:"height" binding:"required,min=1,max=1000"`
	Rotation float64 `json:"rotation,omitempty"`
	Layer    string  `json:"layer,omitempty"`
}

const (
	SLOT_LAYER_BELOW = "below"
	SLOT_LAYER_ABOVE = "above"
)

type PhotoSlots []PhotoSlot

func (a PhotoSlots) Value() (driver.Value, error) {
	valueString, err := json.Marshal(a)
	return string(valueString), err
}
func (a *PhotoSlots) Scan(value any) error {
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	if err := json.Unmarshal(b, &a); err != nil {
		return err
	}
	return nil
}

type BoothPhase string

const (
	PHASE_IDLE         BoothPhase = "idle"
	PHASE_FRAME_SELECT BoothPhase = "frame_select"
	PHASE_PAYMENT      BoothPhase = "payment"
	PHASE_CAPTURE      BoothPhase = "capture"
	PHASE_REVIEW       BoothPhase = "review"
)

type SessionStatus string

const (
	SESSION_PENDING     SessionStatus = "pending"
	SESSION_PAID        SessionStatus = "paid"
	SESSION_CAPTURING   SessionStatus = "capturing"
	SESSION_COMPOSITING SessionStatus = "compositing"
	SESSION_COMPLETED   SessionStatus = "completed"
	SESSION_CANCELLED   SessionStatus = "cancelled"
)

// Rank gives the forward ordering of session statuses. Cancelled sits
// outside the progression and is handled separately.
func (s SessionStatus) Rank() int {
	switch s {
	case SESSION_PENDING:
		return 0
	case SESSION_PAID:
		return 1
	case SESSION_CAPTURING:
		return 2
	case SESSION_COMPOSITING:
		return 3
	case SESSION_COMPLETED:
		return 4
	}
	return -1
}

type PaymentStatus string

const (
	PAYMENT_PENDING PaymentStatus = "pending"
	PAYMENT_PAID    PaymentStatus = "paid"
	PAYMENT_EXPIRED PaymentStatus = "expired"
	PAYMENT_FAILED  PaymentStatus = "failed"
)

func (s PaymentStatus) Terminal() bool {
	return s == PAYMENT_PAID || s == PAYMENT_EXPIRED || s == PAYMENT_FAILED
}

type DiscountType string

const (
	DISCOUNT_FIXED      DiscountType = "fixed"
	DISCOUNT_PERCENTAGE DiscountType = "percentage"
)

// PriceQuote is the result of resolving a booth's base price against an
// optional voucher. Amounts are integer minor-currency units.
type PriceQuote struct {
	Amount   int64 `json:"amount"`
	Discount int64 `json:"discount"`
	Original int64 `json:"original"`
}

// BoothConfig is the operator-owned runtime snapshot the session machine
// re-reads at each phase entry.
type BoothConfig struct {
	BasePrice            int64  `json:"base_price"`
	PaymentBypass        bool   `json:"payment_bypass"`
	CountdownSeconds     int    `json:"countdown_seconds"`
	PreviewSeconds       int    `json:"preview_seconds"`
	ReviewTimeoutSeconds int    `json:"review_timeout_seconds"`
	PrintCopies          int    `json:"print_copies"`
	LocalBackupDir       string `json:"local_backup_dir,omitempty"`
}

type CreateFrameRequestBody struct {
	Name         string      `json:"name" binding:"required"`
	ImageURL     string      `json:"image_url,omitempty"`
	Slots        []PhotoSlot `json:"slots" binding:"required,min=1,dive"`
	CanvasWidth  int         `json:"canvas_width" binding:"required,min=1"`
	CanvasHeight int         `json:"canvas_height" binding:"required,min=1"`
	IsActive     *bool       `json:"is_active,omitempty"`
}

type UpdateBoothConfigRequestBody struct {
	BasePrice            *int64  `json:"base_price,omitempty"`
	PaymentBypass        *bool   `json:"payment_bypass,omitempty"`
	CountdownSeconds     *int    `json:"countdown_seconds,omitempty" binding:"omitempty,min=1,max=60"`
	PreviewSeconds       *int    `json:"preview_seconds,omitempty" binding:"omitempty,min=1,max=60"`
	ReviewTimeoutSeconds *int    `json:"review_timeout_seconds,omitempty" binding:"omitempty,min=10,max=600"`
	PrintCopies          *int    `json:"print_copies,omitempty" binding:"omitempty,min=1,max=10"`
	LocalBackupDir       *string `json:"local_backup_dir,omitempty"`
}

type CreateVoucherRequestBody struct {
	Code           string     `json:"code" binding:"required,vouchercode"`
	DiscountType   string     `json:"discount_type" binding:"required,oneof=fixed percentage"`
	DiscountAmount int64      `json:"discount_amount" binding:"required,min=1"`
	IsActive       *bool      `json:"is_active,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty" binding:"omitempty,futuredate"`
	MaxUses        *uint      `json:"max_uses,omitempty"`
}

type ApplyVoucherRequestBody struct {
	Code string `json:"code" binding:"required"`
}

type SimpleRequestParams struct {
	ID uint `uri:"id" binding:"required"`
}

type ShareURIParams struct {
	ID string `uri:"id" binding:"required,uuid"`
}

type Claims struct {
	BoothID uint   `json:"booth_id"`
	Device  string `json:"device,omitempty"`
	jwt.RegisteredClaims
}
