package lottery

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/openlotto/drawd/internal/metrics"
	"github.com/openlotto/drawd/pkg/logger"
)

// Engine is the draw orchestrator. Every state-mutating operation funnels
// through a single mutex so mutations never interleave; read-only queries go
// straight to the store.
type Engine struct {
	mu     sync.Mutex
	cfg    Params
	store  Store
	bank   Bank
	log    *logger.Logger
	now    func() time.Time
	paused bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New constructs an engine and bootstraps the first draw if the ledger is
// empty. The supplied configuration is immutable afterwards.
func New(cfg Params, store Store, bank Bank, log *logger.Logger, opts ...Option) (*Engine, error) {
	if err := validateParams(cfg); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.NewDefault("lottery")
	}
	e := &Engine{
		cfg:   cfg,
		store: store,
		bank:  bank,
		log:   log,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := store.CurrentDraw(ctx); err != nil {
		if !isNotFound(err) {
			return nil, fmt.Errorf("load current draw: %w", err)
		}
		draw, err := e.newDraw(ctx, 1, e.now())
		if err != nil {
			return nil, fmt.Errorf("bootstrap first draw: %w", err)
		}
		log.WithField("draw_id", draw.ID).Info("first draw opened")
	}
	return e, nil
}

func validateParams(p Params) error {
	switch {
	case p.TicketPrice <= 0:
		return fmt.Errorf("ticket price must be positive")
	case p.HouseFeePercent < 0 || p.HouseFeePercent > 100:
		return fmt.Errorf("house fee percent must be in [0,100]")
	case p.WindowDuration <= 0:
		return fmt.Errorf("window duration must be positive")
	case p.MainCount <= 0 || p.MainCount > p.MainMax:
		return fmt.Errorf("main pick cardinality must be in [1,%d]", p.MainMax)
	case p.BonusCount <= 0 || p.BonusCount > p.BonusMax:
		return fmt.Errorf("bonus pick cardinality must be in [1,%d]", p.BonusMax)
	case p.OperatorID == "":
		return fmt.Errorf("operator identity is required")
	case p.RandomnessSourceID == "":
		return fmt.Errorf("randomness source identity is required")
	case p.PotAccount == "":
		return fmt.Errorf("pot account is required")
	}
	return nil
}

// Params returns the engine configuration.
func (e *Engine) Params() Params { return e.cfg }

// BuyTicket validates the picks and exact payment, collects the payment into
// the pot and records the ticket against the current draw.
func (e *Engine) BuyTicket(ctx context.Context, caller string, main, bonus []int, payment int64) (Ticket, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.paused {
		return Ticket{}, ErrPaused
	}

	draw, err := e.store.CurrentDraw(ctx)
	if err != nil {
		return Ticket{}, fmt.Errorf("load current draw: %w", err)
	}

	now := e.now()
	if draw.Completed || WindowStateAt(draw, now) != WindowActive {
		return Ticket{}, ErrDrawNotActive
	}
	if err := e.cfg.validatePicks(main, bonus); err != nil {
		return Ticket{}, err
	}
	if payment != e.cfg.TicketPrice {
		return Ticket{}, fmt.Errorf("%w: want %d, got %d", ErrInsufficientPayment, e.cfg.TicketPrice, payment)
	}

	ref := fmt.Sprintf("ticket:draw-%d", draw.ID)
	if err := e.bank.Transfer(ctx, caller, e.cfg.PotAccount, payment, ref); err != nil {
		return Ticket{}, fmt.Errorf("collect payment: %w", err)
	}

	ticket := Ticket{
		DrawID:      draw.ID,
		Participant: caller,
		Main:        sortedCopy(main),
		Bonus:       sortedCopy(bonus),
		PurchasedAt: now,
	}
	created, err := e.store.CreateTicket(ctx, ticket)
	if err != nil {
		e.log.WithError(err).WithField("draw_id", draw.ID).Error("ticket persist failed after payment collection")
		e.refund(ctx, caller, payment, draw.ID)
		return Ticket{}, fmt.Errorf("create ticket: %w", err)
	}

	draw.PrizePool += payment
	draw.TicketCount++
	if !containsString(draw.Participants, caller) {
		draw.Participants = append(draw.Participants, caller)
	}
	if _, err := e.store.UpdateDraw(ctx, draw); err != nil {
		e.log.WithError(err).WithField("draw_id", draw.ID).Error("draw update failed after ticket sale")
		if delErr := e.store.DeleteTicket(ctx, created.ID); delErr != nil {
			e.log.WithError(delErr).WithField("ticket_id", created.ID).Error("orphaned ticket could not be removed")
		}
		e.refund(ctx, caller, payment, draw.ID)
		return Ticket{}, fmt.Errorf("update draw: %w", err)
	}

	e.log.WithField("ticket_id", created.ID).
		WithField("draw_id", draw.ID).
		WithField("participant", caller).
		Info("ticket purchased")
	metrics.RecordTicketSold(draw.PrizePool, draw.TicketCount)

	return created, nil
}

// RequestResolution closes the current draw to resolution: permitted only for
// the operator, only strictly after the window end, and only once per draw.
// Returns the opaque token the randomness source must echo back.
func (e *Engine) RequestResolution(ctx context.Context, caller string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.OperatorID {
		return "", ErrUnauthorized
	}

	draw, err := e.store.CurrentDraw(ctx)
	if err != nil {
		return "", fmt.Errorf("load current draw: %w", err)
	}
	if draw.Completed {
		return "", ErrAlreadyCompleted
	}
	if draw.RandomnessRequested {
		return "", ErrAlreadyRequested
	}
	if !resolutionPermitted(draw, e.now()) {
		return "", ErrDrawStillActive
	}

	draw.RandomnessRequested = true
	draw.Status = DrawStatusAwaitingResolution
	if _, err := e.store.UpdateDraw(ctx, draw); err != nil {
		return "", fmt.Errorf("update draw: %w", err)
	}

	token := uuid.NewString()
	if err := e.store.CreateRandomnessRequest(ctx, token, draw.ID); err != nil {
		return "", fmt.Errorf("record randomness request: %w", err)
	}

	e.log.WithField("draw_id", draw.ID).
		WithField("ticket_count", draw.TicketCount).
		Info("resolution requested")
	metrics.RecordResolutionRequested()

	return token, nil
}

// DeliverRandomness consumes one randomness delivery. Only the trusted
// randomness source may call it. Deliveries for unknown tokens or already
// completed draws are silent no-ops so replays stay harmless; a wrong word
// count is rejected.
func (e *Engine) DeliverRandomness(ctx context.Context, caller, token string, words []*big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.RandomnessSourceID {
		return ErrUnauthorized
	}

	drawID, err := e.store.GetRandomnessRequest(ctx, token)
	if err != nil {
		if isNotFound(err) {
			e.log.WithField("token", token).Debug("randomness delivery for unknown token ignored")
			return nil
		}
		return fmt.Errorf("look up randomness request: %w", err)
	}

	draw, err := e.store.GetDraw(ctx, drawID)
	if err != nil {
		return fmt.Errorf("load draw %d: %w", drawID, err)
	}
	if draw.Completed {
		e.log.WithField("draw_id", drawID).Debug("duplicate randomness delivery ignored")
		return nil
	}

	if len(words) != e.cfg.WordCount() {
		return fmt.Errorf("%w: want %d words, got %d", ErrMalformedRandomness, e.cfg.WordCount(), len(words))
	}

	main, bonus, err := ResolveOutcome(words, e.cfg)
	if err != nil {
		return err
	}

	return e.settle(ctx, draw, main, bonus, token)
}

// refund returns a collected payment after a failed purchase. A refund that
// itself fails leaves the funds in the pot and requires manual intervention.
func (e *Engine) refund(ctx context.Context, caller string, amount, drawID int64) {
	ref := fmt.Sprintf("refund:draw-%d", drawID)
	if err := e.bank.Transfer(ctx, e.cfg.PotAccount, caller, amount, ref); err != nil {
		e.log.WithError(err).
			WithField("participant", caller).
			WithField("amount", amount).
			Error("refund failed; funds stranded in pot")
	}
}

// settle matches every sold ticket against the winning picks, finalizes the
// draw and disburses the pool. The completed flag and winners list are
// persisted before any transfer is attempted, so a transfer failure leaves a
// draw that cannot be re-settled; that failure is surfaced as fatal and
// requires manual intervention.
func (e *Engine) settle(ctx context.Context, draw Draw, winningMain, winningBonus []int, token string) error {
	now := e.now()

	var winners []Winner
	for _, participant := range draw.Participants {
		tickets, err := e.store.ListTicketsByParticipant(ctx, draw.ID, participant)
		if err != nil {
			return fmt.Errorf("list tickets for %s: %w", participant, err)
		}
		for _, t := range tickets {
			if equalInts(t.Main, winningMain) && equalInts(t.Bonus, winningBonus) {
				winners = append(winners, Winner{TicketID: t.ID, Participant: participant})
			}
		}
	}

	pool := draw.PrizePool
	houseFee := pool * e.cfg.HouseFeePercent / 100
	winnerPool := pool - houseFee
	var prizePerWinner int64
	if len(winners) > 0 {
		prizePerWinner = winnerPool / int64(len(winners))
		for i := range winners {
			winners[i].Prize = prizePerWinner
		}
	}

	draw.WinningMain = winningMain
	draw.WinningBonus = winningBonus
	draw.Winners = winners
	draw.Completed = true
	draw.Status = DrawStatusCompleted
	draw.CompletedAt = now
	if _, err := e.store.UpdateDraw(ctx, draw); err != nil {
		// Finalization never happened; the token stays live so the delivery
		// can be retried.
		return fmt.Errorf("finalize draw: %w", err)
	}

	// The mapping is consumed only once the completed flag is durable; the
	// flag guards any replay from here on.
	if err := e.store.DeleteRandomnessRequest(ctx, token); err != nil {
		e.log.WithError(err).WithField("token", token).Warn("failed to consume randomness request")
	}

	// Zero winners: nothing moves, the whole pool (house fee included) stays
	// in the pot until recovered via the emergency path.
	var disbursed int64
	if len(winners) > 0 {
		if err := e.bank.Transfer(ctx, e.cfg.PotAccount, e.cfg.OperatorID, houseFee, fmt.Sprintf("house-fee:draw-%d", draw.ID)); err != nil {
			e.log.WithError(err).WithField("draw_id", draw.ID).Error("house fee transfer failed; draw is finalized and cannot be re-settled")
			return fmt.Errorf("%w: house fee for draw %d: %v", ErrTransferFailed, draw.ID, err)
		}
		disbursed += houseFee
		for _, w := range winners {
			if err := e.bank.Transfer(ctx, e.cfg.PotAccount, w.Participant, w.Prize, fmt.Sprintf("prize:draw-%d:%s", draw.ID, w.TicketID)); err != nil {
				e.log.WithError(err).
					WithField("draw_id", draw.ID).
					WithField("ticket_id", w.TicketID).
					Error("prize transfer failed; draw is finalized and cannot be re-settled")
				return fmt.Errorf("%w: prize for ticket %s: %v", ErrTransferFailed, w.TicketID, err)
			}
			disbursed += w.Prize
		}
	}

	e.log.WithField("draw_id", draw.ID).
		WithField("winning_main", winningMain).
		WithField("winning_bonus", winningBonus).
		WithField("winner_count", len(winners)).
		WithField("pool", pool).
		WithField("disbursed", disbursed).
		Info("draw settled")
	metrics.RecordDrawSettled(len(winners), disbursed)

	// Rollover is deferred while paused; Unpause opens the next draw.
	if !e.paused {
		next, err := e.newDraw(ctx, draw.ID+1, now)
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		e.log.WithField("draw_id", next.ID).Info("new draw opened")
	}

	return nil
}

// Pause rejects ticket purchases until Unpause. Operator only.
func (e *Engine) Pause(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.cfg.OperatorID {
		return ErrUnauthorized
	}
	e.paused = true
	e.log.Warn("engine paused")
	return nil
}

// Unpause restores ticket sales. If the current draw completed while paused,
// the deferred rollover happens now. Operator only.
func (e *Engine) Unpause(ctx context.Context, caller string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if caller != e.cfg.OperatorID {
		return ErrUnauthorized
	}
	e.paused = false

	draw, err := e.store.CurrentDraw(ctx)
	if err != nil {
		return fmt.Errorf("load current draw: %w", err)
	}
	if draw.Completed {
		next, err := e.newDraw(ctx, draw.ID+1, e.now())
		if err != nil {
			return fmt.Errorf("rollover: %w", err)
		}
		e.log.WithField("draw_id", next.ID).Info("new draw opened")
	}
	e.log.Info("engine unpaused")
	return nil
}

// EmergencyWithdraw transfers the pot's entire remaining balance to the
// operator: the rounding residue plus any undistributed zero-winner pools.
// Permitted only while paused and only once the current draw is completed, so
// a draw holding live funds can never be drained.
func (e *Engine) EmergencyWithdraw(ctx context.Context, caller string) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.OperatorID {
		return 0, ErrUnauthorized
	}
	if !e.paused {
		return 0, ErrNotPaused
	}

	draw, err := e.store.CurrentDraw(ctx)
	if err != nil {
		return 0, fmt.Errorf("load current draw: %w", err)
	}
	if !draw.Completed {
		return 0, ErrWithdrawalBlocked
	}

	balance, err := e.bank.Balance(ctx, e.cfg.PotAccount)
	if err != nil {
		return 0, fmt.Errorf("pot balance: %w", err)
	}
	if balance == 0 {
		return 0, nil
	}
	if err := e.bank.Transfer(ctx, e.cfg.PotAccount, e.cfg.OperatorID, balance, "emergency-withdrawal"); err != nil {
		return 0, fmt.Errorf("%w: emergency withdrawal: %v", ErrTransferFailed, err)
	}

	e.log.WithField("amount", balance).Warn("emergency withdrawal executed")
	return balance, nil
}

// Paused reports whether ticket sales are suspended.
func (e *Engine) Paused() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.paused
}

// GetDraw returns a historical or current draw.
func (e *Engine) GetDraw(ctx context.Context, drawID int64) (Draw, error) {
	draw, err := e.store.GetDraw(ctx, drawID)
	if err != nil {
		if isNotFound(err) {
			return Draw{}, ErrDrawNotFound
		}
		return Draw{}, err
	}
	return draw, nil
}

// GetCurrentStatus returns a snapshot of the current draw and pause state.
func (e *Engine) GetCurrentStatus(ctx context.Context) (Status, error) {
	draw, err := e.store.CurrentDraw(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{
		DrawID:      draw.ID,
		Status:      draw.Status,
		PrizePool:   draw.PrizePool,
		TicketCount: draw.TicketCount,
		WindowStart: draw.WindowStart,
		WindowEnd:   draw.WindowEnd,
		Paused:      e.Paused(),
	}, nil
}

// GetTicketsFor lists a participant's tickets under a draw.
func (e *Engine) GetTicketsFor(ctx context.Context, drawID int64, participant string) ([]Ticket, error) {
	if _, err := e.GetDraw(ctx, drawID); err != nil {
		return nil, err
	}
	return e.store.ListTicketsByParticipant(ctx, drawID, participant)
}

// GetWinners returns the winners list of a draw: empty until settlement, and
// empty forever for a draw settled with no winners.
func (e *Engine) GetWinners(ctx context.Context, drawID int64) ([]Winner, error) {
	draw, err := e.GetDraw(ctx, drawID)
	if err != nil {
		return nil, err
	}
	return draw.Winners, nil
}

func (e *Engine) newDraw(ctx context.Context, id int64, start time.Time) (Draw, error) {
	draw := Draw{
		ID:          id,
		Status:      DrawStatusOpen,
		WindowStart: start,
		WindowEnd:   start.Add(e.cfg.WindowDuration),
	}
	created, err := e.store.CreateDraw(ctx, draw)
	if err != nil {
		return Draw{}, err
	}
	metrics.RecordRollover()
	return created, nil
}

func sortedCopy(values []int) []int {
	out := make([]int, len(values))
	copy(out, values)
	sort.Ints(out)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func containsString(values []string, s string) bool {
	for _, v := range values {
		if v == s {
			return true
		}
	}
	return false
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrDrawNotFound) || errors.Is(err, ErrRequestNotFound)
}
