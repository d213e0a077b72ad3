package common

import (
	"context"
	"errors"
	"image"
	"log"
	"sync"
	"time"

	"booth/src/config"
	"booth/src/lib"
	"booth/src/models"
	"booth/src/types"

	"github.com/jonboulle/clockwork"
)

var (
	ErrWrongPhase      = errors.New("operation not allowed in current phase")
	ErrNoFrameSelected = errors.New("no frame selected")
	ErrNoPendingPhoto  = errors.New("no pending photo")
	ErrPhotoPending    = errors.New("pending photo awaiting confirm or retake")
	ErrNotReady        = errors.New("composite not ready yet")
)

// MachineDeps are the collaborators the session machine drives. All of
// them are capability interfaces so tests can substitute fakes.
type MachineDeps struct {
	Store    SessionStore
	Gateway  PaymentGateway
	Camera   lib.Camera
	Printer  lib.Printer
	Pipeline *AssetPipeline
	Clock    clockwork.Clock
	// FetchImage resolves a frame's overlay asset. Failures are tolerated,
	// the composite just renders without the overlay.
	FetchImage func(ctx context.Context, url string) (image.Image, error)
}

// Machine is the booth session state machine: one booth, one customer
// flow at a time, phases idle -> frame_select -> payment -> capture ->
// review -> idle. Every mutation goes through the mutex; timers are
// deadlines evaluated by Tick against the injected clock, so transitions
// only ever happen on an explicit call.
type Machine struct {
	mu sync.Mutex

	boothID uint
	deps    MachineDeps

	phase types.BoothPhase
	// epoch increments on every reset. Async completions carry the epoch
	// they started under and are dropped when it no longer matches, so a
	// stale pipeline or print can never touch a later customer's session.
	epoch uint64

	cfg     types.BoothConfig
	frames  []*models.Frame
	voucher *models.Voucher
	quote   types.PriceQuote

	selectedFrame *models.Frame
	session       *models.Session
	payment       *models.Payment
	invoice       *Invoice
	payDeadline   time.Time
	localExpired  bool

	photos          [][]byte
	pending         []byte
	photoIndex      int
	previewDeadline time.Time
	captureDeadline time.Time

	reviewDeadline time.Time
	uploading      bool
	printing       bool
	composite      []byte
	result         *ShareResult
	pipelineErr    string
}

func NewMachine(boothID uint, deps MachineDeps) *Machine {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	return &Machine{
		boothID: boothID,
		deps:    deps,
		phase:   types.PHASE_IDLE,
	}
}

var machine *Machine

func GetMachine() *Machine {
	return machine
}

// SetMachine installs the process-wide machine. Called from boot, and by
// tests to swap in a wired fake.
func SetMachine(m *Machine) {
	machine = m
}

// MachineState is the UI-facing snapshot. The kiosk renders purely from
// this, it never sees vendor objects or raw errors.
type MachineState struct {
	Phase            types.BoothPhase `json:"phase"`
	Frames           []*models.Frame  `json:"frames,omitempty"`
	SelectedFrameID  *uint            `json:"selected_frame_id,omitempty"`
	VoucherCode      string           `json:"voucher_code,omitempty"`
	Quote            types.PriceQuote `json:"quote"`
	SessionID        string           `json:"session_id,omitempty"`
	PayURL           string           `json:"pay_url,omitempty"`
	PaymentExpired   bool             `json:"payment_expired,omitempty"`
	CountdownSeconds int              `json:"countdown_seconds,omitempty"`
	PreviewSeconds   int              `json:"preview_seconds,omitempty"`
	PhotoIndex       int              `json:"photo_index"`
	PhotoCount       int              `json:"photo_count"`
	HasPendingPhoto  bool             `json:"has_pending_photo"`
	Uploading        bool             `json:"uploading"`
	Printing         bool             `json:"printing"`
	Result           *ShareResult     `json:"result,omitempty"`
	PipelineError    string           `json:"pipeline_error,omitempty"`
}

func (m *Machine) State() MachineState {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := MachineState{
		Phase:            m.phase,
		Frames:           m.frames,
		VoucherCode:      voucherCode(m.voucher),
		Quote:            m.quote,
		PaymentExpired:   m.localExpired,
		CountdownSeconds: m.cfg.CountdownSeconds,
		PreviewSeconds:   m.cfg.PreviewSeconds,
		PhotoIndex:       m.photoIndex,
		HasPendingPhoto:  m.pending != nil,
		Uploading:        m.uploading,
		Printing:         m.printing,
		Result:           m.result,
		PipelineError:    m.pipelineErr,
	}
	if m.selectedFrame != nil {
		id := m.selectedFrame.ID
		st.SelectedFrameID = &id
		st.PhotoCount = len(m.selectedFrame.Slots)
	}
	if m.session != nil {
		st.SessionID = m.session.ID.String()
	}
	if m.invoice != nil {
		st.PayURL = m.invoice.PayURL
	}
	return st
}

func voucherCode(v *models.Voucher) string {
	if v == nil {
		return ""
	}
	return v.Code
}

// Start moves idle -> frame_select. Requires at least one active frame;
// no network call beyond the config/frame reads.
func (m *Machine) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_IDLE {
		return ErrWrongPhase
	}
	cfg, err := m.deps.Store.BoothConfig(ctx, m.boothID)
	if err != nil {
		return err
	}
	frames, err := m.deps.Store.ActiveFrames(ctx, m.boothID)
	if err != nil {
		return err
	}
	if len(frames) == 0 {
		return ErrNoActiveFrames
	}
	m.cfg = *cfg
	m.frames = frames
	m.quote = ComputePrice(m.cfg.BasePrice, nil)
	m.phase = types.PHASE_FRAME_SELECT
	return nil
}

// ApplyVoucher validates and attaches a voucher during frame selection.
// The voucher is only consumed later, at session creation.
func (m *Machine) ApplyVoucher(ctx context.Context, code string) (types.PriceQuote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_FRAME_SELECT {
		return m.quote, ErrWrongPhase
	}
	voucher, err := ValidateVoucher(code, m.boothID)
	if err != nil {
		return m.quote, err
	}
	m.voucher = voucher
	m.quote = ComputePrice(m.cfg.BasePrice, voucher)
	return m.quote, nil
}

func (m *Machine) ClearVoucher() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voucher = nil
	m.quote = ComputePrice(m.cfg.BasePrice, nil)
}

func (m *Machine) SelectFrame(frameID uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_FRAME_SELECT {
		return ErrWrongPhase
	}
	for _, f := range m.frames {
		if f.ID == frameID {
			m.selectedFrame = f
			return nil
		}
	}
	return errors.New("frame is not available")
}

// Confirm commits the frame choice: it creates the session row (consuming
// the voucher atomically) and either creates an invoice or, for free and
// bypass sessions, skips payment entirely and goes straight to capture.
// Invoice creation failure keeps the machine in frame_select; the orphaned
// session row was never paid and is acceptable.
func (m *Machine) Confirm(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_FRAME_SELECT {
		return ErrWrongPhase
	}
	if m.selectedFrame == nil {
		return ErrNoFrameSelected
	}
	// Config is the operator's, re-read so edits apply to the next phase.
	if cfg, err := m.deps.Store.BoothConfig(ctx, m.boothID); err == nil {
		m.cfg = *cfg
	}
	m.quote = ComputePrice(m.cfg.BasePrice, m.voucher)

	var voucherID *uint
	if m.voucher != nil {
		id := m.voucher.ID
		voucherID = &id
	}
	free := m.cfg.PaymentBypass || (m.voucher != nil && m.quote.Amount == 0)

	session, err := m.deps.Store.CreateSession(ctx, m.boothID, m.selectedFrame.ID, voucherID)
	if err != nil {
		if errors.Is(err, ErrVoucherExhausted) {
			// Lost the race on the last use; drop the stale voucher.
			m.voucher = nil
			m.quote = ComputePrice(m.cfg.BasePrice, nil)
		}
		return err
	}
	m.session = session

	if free {
		if err := m.deps.Store.AdvanceSession(ctx, session.ID, types.SESSION_PAID); err != nil {
			log.Printf("[machine] Error marking free session paid: %s\n", err.Error())
		}
		m.enterCaptureLocked(ctx)
		return nil
	}

	ttl := time.Duration(config.InvoiceTTLSeconds) * time.Second
	invoice, err := m.deps.Gateway.CreateInvoice(ctx, session.ID.String(), m.quote.Amount, "Photobooth session", ttl)
	if err != nil {
		// Fatal to entering payment only; the machine stays in frame_select.
		m.session = nil
		return err
	}
	payment, err := m.deps.Store.CreatePayment(ctx, session.ID, invoice.ID, m.quote.Amount)
	if err != nil {
		m.session = nil
		return err
	}
	m.payment = payment
	m.invoice = invoice
	m.localExpired = false
	m.payDeadline = m.deps.Clock.Now().Add(ttl)
	m.phase = types.PHASE_PAYMENT
	return nil
}

// Cancel backs out of the flow before capture. Local state only: rows
// already created server-side stay behind as unpaid orphans.
func (m *Machine) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_FRAME_SELECT && m.phase != types.PHASE_PAYMENT {
		return ErrWrongPhase
	}
	m.resetLocked()
	return nil
}

// PollPayment performs one invoice status poll. Driven every few seconds
// by the runner while the machine waits for payment. Poll errors are
// logged and retried on the next interval, they are not fatal.
func (m *Machine) PollPayment(ctx context.Context) {
	m.mu.Lock()
	if m.phase != types.PHASE_PAYMENT || m.invoice == nil {
		m.mu.Unlock()
		return
	}
	invoiceID := m.invoice.ID
	m.mu.Unlock()

	status, err := m.deps.Gateway.GetInvoiceStatus(ctx, invoiceID)
	if err != nil {
		log.Printf("[machine] Invoice poll failed: %s\n", err.Error())
		return
	}
	switch status {
	case types.PAYMENT_PAID:
		m.settlePayment(ctx, invoiceID, types.PAYMENT_PAID)
	case types.PAYMENT_EXPIRED, types.PAYMENT_FAILED:
		m.settlePayment(ctx, invoiceID, status)
	}
}

// NotifyPayment is the webhook entry point. The payment row has already
// been updated by the webhook handler; this routes the active session
// forward. Poll and webhook converge here and the update is idempotent:
// whichever observes the terminal state first wins, the second is a no-op.
func (m *Machine) NotifyPayment(ctx context.Context, invoiceID string, status types.PaymentStatus) {
	if !status.Terminal() {
		return
	}
	m.settlePayment(ctx, invoiceID, status)
}

func (m *Machine) settlePayment(ctx context.Context, invoiceID string, status types.PaymentStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_PAYMENT || m.invoice == nil || m.invoice.ID != invoiceID {
		// Not the active session anymore; the row update already happened.
		return
	}
	if m.payment != nil {
		transitioned, err := m.deps.Store.MarkPaymentTerminal(ctx, m.payment.ID, status)
		if err != nil {
			log.Printf("[machine] Error updating payment %s: %s\n", m.payment.ID.String(), err.Error())
			return
		}
		if !transitioned {
			if status == types.PAYMENT_PAID {
				// The sweep may have expired the row before the vendor
				// confirmation landed. Vendor paid wins over a local expiry.
				corrected, err := m.deps.Store.ReconcilePaymentPaid(ctx, m.payment.ID)
				if err != nil {
					log.Printf("[machine] Error reconciling payment %s: %s\n", m.payment.ID.String(), err.Error())
				} else if corrected {
					log.Printf("[machine] Payment %s corrected expired -> paid\n", m.payment.ID.String())
				}
			} else {
				log.Printf("[machine] Payment %s already terminal\n", m.payment.ID.String())
			}
		}
	}
	switch status {
	case types.PAYMENT_PAID:
		// A late paid confirmation while the local countdown shows expired
		// still routes forward: vendor status is authoritative.
		if err := m.deps.Store.AdvanceSession(ctx, m.session.ID, types.SESSION_PAID); err != nil {
			log.Printf("[machine] Error advancing session: %s\n", err.Error())
		}
		m.localExpired = false
		m.enterCaptureLocked(ctx)
	case types.PAYMENT_EXPIRED, types.PAYMENT_FAILED:
		m.localExpired = true
	}
}

func (m *Machine) enterCaptureLocked(ctx context.Context) {
	if cfg, err := m.deps.Store.BoothConfig(ctx, m.boothID); err == nil {
		m.cfg = *cfg
	}
	if err := m.deps.Store.AdvanceSession(ctx, m.session.ID, types.SESSION_CAPTURING); err != nil {
		log.Printf("[machine] Error advancing session: %s\n", err.Error())
	}
	m.phase = types.PHASE_CAPTURE
	m.photos = make([][]byte, 0, len(m.selectedFrame.Slots))
	m.photoIndex = 0
	m.pending = nil
	m.invoice = nil
	m.touchCaptureLocked()
}

// touchCaptureLocked pushes the capture abandonment deadline out. Called on
// every capture-phase interaction so only a walked-away customer trips it.
func (m *Machine) touchCaptureLocked() {
	m.captureDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.ReviewTimeoutSeconds) * time.Second)
}

// Shoot fires the shutter for the current slot. Camera unavailability is
// recoverable: committed photos are kept and the caller retries.
func (m *Machine) Shoot(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != types.PHASE_CAPTURE {
		m.mu.Unlock()
		return ErrWrongPhase
	}
	if m.pending != nil {
		m.mu.Unlock()
		return ErrPhotoPending
	}
	epoch := m.epoch
	m.mu.Unlock()

	img, err := m.deps.Camera.Capture(ctx)
	if err != nil {
		log.Printf("[machine] Capture failed: %s\n", err.Error())
		return lib.ErrCameraUnavailable
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.phase != types.PHASE_CAPTURE {
		return ErrWrongPhase
	}
	m.pending = img
	m.previewDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.PreviewSeconds) * time.Second)
	m.touchCaptureLocked()
	return nil
}

// ConfirmPhoto commits the pending shot to its slot. After the last slot
// the machine moves to review and kicks the pipeline automatically.
func (m *Machine) ConfirmPhoto(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_CAPTURE {
		return ErrWrongPhase
	}
	if m.pending == nil {
		return ErrNoPendingPhoto
	}
	m.commitPendingLocked(ctx)
	return nil
}

func (m *Machine) commitPendingLocked(ctx context.Context) {
	m.photos = append(m.photos, m.pending)
	m.pending = nil
	m.photoIndex++
	if m.photoIndex >= len(m.selectedFrame.Slots) {
		m.enterReviewLocked(ctx)
		return
	}
	m.touchCaptureLocked()
}

// RetakePhoto discards only the uncommitted shot, never a committed one.
func (m *Machine) RetakePhoto() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_CAPTURE {
		return ErrWrongPhase
	}
	if m.pending == nil {
		return ErrNoPendingPhoto
	}
	m.pending = nil
	m.touchCaptureLocked()
	return nil
}

func (m *Machine) enterReviewLocked(ctx context.Context) {
	if cfg, err := m.deps.Store.BoothConfig(ctx, m.boothID); err == nil {
		m.cfg = *cfg
	}
	if err := m.deps.Store.AdvanceSession(ctx, m.session.ID, types.SESSION_COMPOSITING); err != nil {
		log.Printf("[machine] Error advancing session: %s\n", err.Error())
	}
	m.phase = types.PHASE_REVIEW
	m.uploading = true
	m.result = nil
	m.pipelineErr = ""
	m.reviewDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.ReviewTimeoutSeconds) * time.Second)
	go m.runPipeline(m.epoch, m.session, m.selectedFrame, append([][]byte(nil), m.photos...))
}

// RetryUpload replays the whole pipeline from scratch with the same
// inputs after a fatal failure.
func (m *Machine) RetryUpload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_REVIEW {
		return ErrWrongPhase
	}
	if m.uploading {
		return ErrPipelineRunning
	}
	if m.pipelineErr == "" {
		return errors.New("nothing to retry")
	}
	m.uploading = true
	m.pipelineErr = ""
	m.reviewDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.ReviewTimeoutSeconds) * time.Second)
	go m.runPipeline(m.epoch, m.session, m.selectedFrame, append([][]byte(nil), m.photos...))
	return nil
}

func (m *Machine) runPipeline(epoch uint64, session *models.Session, frame *models.Frame, photos [][]byte) {
	ctx := context.Background()
	var overlay image.Image
	if frame.ImageURL != "" && m.deps.FetchImage != nil {
		img, err := m.deps.FetchImage(ctx, frame.ImageURL)
		if err != nil {
			// Tolerated: the strip renders without the overlay.
			log.Printf("[machine] Could not fetch frame overlay: %s\n", err.Error())
		} else {
			overlay = img
		}
	}
	composite, err := Composite(frame, overlay, photos)
	if err != nil {
		m.completePipeline(epoch, nil, err)
		return
	}

	m.mu.Lock()
	if m.epoch == epoch {
		m.composite = composite
	}
	m.mu.Unlock()

	result, err := m.deps.Pipeline.Run(ctx, session, composite, photos)
	m.completePipeline(epoch, result, err)
}

// completePipeline folds an async pipeline outcome back into the machine.
// Outcomes from a previous epoch belong to a torn-down session and are
// discarded.
func (m *Machine) completePipeline(epoch uint64, result *ShareResult, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		log.Printf("[machine] Discarding stale pipeline result\n")
		return
	}
	m.uploading = false
	m.reviewDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.ReviewTimeoutSeconds) * time.Second)
	if err != nil {
		log.Printf("[machine] Pipeline failed: %s\n", err.Error())
		m.pipelineErr = "upload failed"
		return
	}
	m.result = result
}

// Print sends the composite to the printer, fire-and-forget. Any print
// action also pushes the review auto-reset window out.
func (m *Machine) Print() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != types.PHASE_REVIEW {
		return ErrWrongPhase
	}
	if len(m.composite) == 0 {
		return ErrNotReady
	}
	m.reviewDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.ReviewTimeoutSeconds) * time.Second)
	m.printing = true
	epoch := m.epoch
	composite := m.composite
	copies := m.cfg.PrintCopies
	go func() {
		if err := m.deps.Printer.Print(composite, copies); err != nil {
			log.Printf("[machine] Print failed: %s\n", err.Error())
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.epoch != epoch {
			return
		}
		m.printing = false
		m.reviewDeadline = m.deps.Clock.Now().Add(time.Duration(m.cfg.ReviewTimeoutSeconds) * time.Second)
	}()
	return nil
}

// Reset tears the current flow down and returns to idle. In-memory photos
// and session references are discarded; persisted rows stay in storage.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetLocked()
}

func (m *Machine) resetLocked() {
	m.epoch++
	m.phase = types.PHASE_IDLE
	m.frames = nil
	m.voucher = nil
	m.quote = types.PriceQuote{}
	m.selectedFrame = nil
	m.session = nil
	m.payment = nil
	m.invoice = nil
	m.localExpired = false
	m.photos = nil
	m.pending = nil
	m.photoIndex = 0
	m.previewDeadline = time.Time{}
	m.captureDeadline = time.Time{}
	m.uploading = false
	m.printing = false
	m.composite = nil
	m.result = nil
	m.pipelineErr = ""
}

// Tick evaluates the advisory timers against the clock. The payment
// countdown only flips the local view to expired, it never aborts the
// invoice: a later vendor confirmation is still honored. In capture, an
// unreviewed shot auto-commits after the preview window and an untouched
// booth resets after the abandonment deadline. The review timer
// auto-resets the booth, suspended while uploading or printing.
func (m *Machine) Tick(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.deps.Clock.Now()
	switch m.phase {
	case types.PHASE_PAYMENT:
		if !m.localExpired && now.After(m.payDeadline) {
			log.Printf("[machine] Local payment countdown expired\n")
			m.localExpired = true
		}
	case types.PHASE_CAPTURE:
		if m.pending != nil {
			if now.After(m.previewDeadline) {
				m.commitPendingLocked(ctx)
			}
			return
		}
		if now.After(m.captureDeadline) {
			log.Printf("[machine] Capture abandoned, returning to idle\n")
			m.resetLocked()
		}
	case types.PHASE_REVIEW:
		if m.uploading || m.printing {
			return
		}
		if now.After(m.reviewDeadline) {
			log.Printf("[machine] Review timeout, returning to idle\n")
			m.resetLocked()
		}
	}
}

// CameraReady reports whether the capture agent answers its status probe.
func (m *Machine) CameraReady(ctx context.Context) bool {
	if m.deps.Camera == nil {
		return false
	}
	return m.deps.Camera.Available(ctx)
}

// RunLoop drives Tick and PollPayment until the context ends. Production
// wiring starts this once from boot.
func (m *Machine) RunLoop(ctx context.Context) {
	tick := m.deps.Clock.NewTicker(1 * time.Second)
	defer tick.Stop()
	poll := m.deps.Clock.NewTicker(time.Duration(config.InvoicePollIntervalSeconds) * time.Second)
	defer poll.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.Chan():
			m.Tick(ctx)
		case <-poll.Chan():
			m.PollPayment(ctx)
		}
	}
}
