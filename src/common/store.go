package common

import (
	"context"
	"errors"
	"log"

	"booth/src/db"
	"booth/src/models"
	"booth/src/types"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var ErrNoActiveFrames = errors.New("no active frames configured")

// SessionStore persists session and payment rows. Status transitions are
// append-only: a terminal or later status is never overwritten backward.
type SessionStore interface {
	BoothConfig(ctx context.Context, boothID uint) (*types.BoothConfig, error)
	ActiveFrames(ctx context.Context, boothID uint) ([]*models.Frame, error)
	GetFrame(ctx context.Context, id uint) (*models.Frame, error)

	// CreateSession creates the pending session row, consuming the voucher
	// atomically in the same transaction when one is applied.
	CreateSession(ctx context.Context, boothID uint, frameID uint, voucherID *uint) (*models.Session, error)
	CreatePayment(ctx context.Context, sessionID uuid.UUID, invoiceID string, amount int64) (*models.Payment, error)

	// AdvanceSession moves a session's status forward. Applying a status the
	// session already passed is a no-op, regression is refused.
	AdvanceSession(ctx context.Context, id uuid.UUID, to types.SessionStatus) error
	CancelSession(ctx context.Context, id uuid.UUID) error

	// MarkPaymentTerminal sets a terminal status iff the payment is still
	// pending. Returns true when this call performed the transition.
	MarkPaymentTerminal(ctx context.Context, paymentID uuid.UUID, to types.PaymentStatus) (bool, error)
	MarkPaymentTerminalByInvoice(ctx context.Context, invoiceID string, to types.PaymentStatus) (*models.Payment, bool, error)

	// ReconcilePaymentPaid corrects a row the expiry sweep already closed
	// when the vendor later confirms payment. Never touches a paid row.
	ReconcilePaymentPaid(ctx context.Context, paymentID uuid.UUID) (bool, error)

	// FinalizeSession is an idempotent conditional upsert of the completed
	// shape, keyed on session id and refusing resurrection of a cancelled row.
	FinalizeSession(ctx context.Context, id uuid.UUID, finalImageUrl string, photosUrls []string, videoUrl *string) error

	GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error)
}

// GormStore is the postgres-backed SessionStore.
type GormStore struct{}

func NewGormStore() *GormStore {
	return &GormStore{}
}

func (s *GormStore) BoothConfig(ctx context.Context, boothID uint) (*types.BoothConfig, error) {
	db := db.GetDb()
	var booth models.Booth
	if err := db.WithContext(ctx).
		Model(&models.Booth{}).
		Where("id = ?", boothID).
		First(&booth).
		Error; err != nil {
		return nil, err
	}
	cfg := booth.Config()
	return &cfg, nil
}

func (s *GormStore) ActiveFrames(ctx context.Context, boothID uint) ([]*models.Frame, error) {
	db := db.GetDb()
	var frames []*models.Frame
	if err := db.WithContext(ctx).
		Model(&models.Frame{}).
		Where(&models.Frame{BoothID: boothID}).
		Where("is_active = ?", true).
		Order("id asc").
		Find(&frames).
		Error; err != nil {
		return nil, err
	}
	return frames, nil
}

func (s *GormStore) GetFrame(ctx context.Context, id uint) (*models.Frame, error) {
	db := db.GetDb()
	var frame models.Frame
	if err := db.WithContext(ctx).
		Model(&models.Frame{}).
		Where("id = ?", id).
		First(&frame).
		Error; err != nil {
		return nil, err
	}
	return &frame, nil
}

func (s *GormStore) CreateSession(ctx context.Context, boothID uint, frameID uint, voucherID *uint) (*models.Session, error) {
	db := db.GetDb()
	session := &models.Session{
		ID:      uuid.New(),
		BoothID: boothID,
		FrameID: &frameID,
		Status:  types.SESSION_PENDING,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if voucherID != nil {
			if err := ConsumeVoucher(tx, *voucherID); err != nil {
				return err
			}
		}
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (s *GormStore) CreatePayment(ctx context.Context, sessionID uuid.UUID, invoiceID string, amount int64) (*models.Payment, error) {
	db := db.GetDb()
	payment := &models.Payment{
		ID:                uuid.New(),
		SessionID:         sessionID,
		ExternalInvoiceID: invoiceID,
		Amount:            amount,
		Status:            types.PAYMENT_PENDING,
	}
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		if err := tx.
			Model(&models.Session{}).
			Where("id = ? AND payment_id IS NULL", sessionID).
			Update("payment_id", payment.ID).
			Error; err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return payment, nil
}

// sessionStatusBefore lists the statuses a session may still hold when
// moving to the given one. A conditional WHERE on them makes the update
// idempotent and forward-only.
func sessionStatusBefore(to types.SessionStatus) []types.SessionStatus {
	var prior []types.SessionStatus
	for _, st := range []types.SessionStatus{
		types.SESSION_PENDING,
		types.SESSION_PAID,
		types.SESSION_CAPTURING,
		types.SESSION_COMPOSITING,
		types.SESSION_COMPLETED,
	} {
		if st.Rank() < to.Rank() {
			prior = append(prior, st)
		}
	}
	return prior
}

func (s *GormStore) AdvanceSession(ctx context.Context, id uuid.UUID, to types.SessionStatus) error {
	if to.Rank() < 0 {
		return errors.New("invalid session status")
	}
	db := db.GetDb()
	res := db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Where("status IN ?", sessionStatusBefore(to)).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Already at or past the target status, or cancelled. No-op.
		log.Printf("[store] Session %s already at/past %s\n", id.String(), to)
	}
	return nil
}

func (s *GormStore) CancelSession(ctx context.Context, id uuid.UUID) error {
	db := db.GetDb()
	return db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Where("status <> ?", types.SESSION_COMPLETED).
		Update("status", types.SESSION_CANCELLED).
		Error
}

func (s *GormStore) MarkPaymentTerminal(ctx context.Context, paymentID uuid.UUID, to types.PaymentStatus) (bool, error) {
	if !to.Terminal() {
		return false, errors.New("status is not terminal")
	}
	db := db.GetDb()
	res := db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Where("status = ?", types.PAYMENT_PENDING).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) MarkPaymentTerminalByInvoice(ctx context.Context, invoiceID string, to types.PaymentStatus) (*models.Payment, bool, error) {
	if !to.Terminal() {
		return nil, false, errors.New("status is not terminal")
	}
	db := db.GetDb()
	var payment models.Payment
	if err := db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("external_invoice_id = ?", invoiceID).
		First(&payment).
		Error; err != nil {
		return nil, false, err
	}
	transitioned, err := s.MarkPaymentTerminal(ctx, payment.ID, to)
	if err != nil {
		return nil, false, err
	}
	return &payment, transitioned, nil
}

func (s *GormStore) ReconcilePaymentPaid(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	db := db.GetDb()
	res := db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ?", paymentID).
		Where("status IN ?", []types.PaymentStatus{types.PAYMENT_EXPIRED, types.PAYMENT_FAILED}).
		Update("status", types.PAYMENT_PAID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (s *GormStore) FinalizeSession(ctx context.Context, id uuid.UUID, finalImageUrl string, photosUrls []string, videoUrl *string) error {
	db := db.GetDb()
	urls := make(types.JSONBArray, 0, len(photosUrls))
	for _, u := range photosUrls {
		urls = append(urls, u)
	}
	res := db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Where("status <> ?", types.SESSION_CANCELLED).
		Updates(map[string]any{
			"final_image_url": finalImageUrl,
			"photos_urls":     urls,
			"video_url":       videoUrl,
			"status":          types.SESSION_COMPLETED,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New("session not found or cancelled")
	}
	return nil
}

func (s *GormStore) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	db := db.GetDb()
	var session models.Session
	if err := db.WithContext(ctx).
		Model(&models.Session{}).
		Where("id = ?", id).
		Preload("Frame").
		Preload("Payment").
		First(&session).
		Error; err != nil {
		return nil, err
	}
	return &session, nil
}
