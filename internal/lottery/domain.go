// Package lottery implements the recurring draw lifecycle: ticket intake during a
// fixed sales window, one-shot randomness consumption, winner determination and
// atomic payout with automatic rollover into the next draw.
package lottery

import "time"

// DrawStatus represents the lifecycle state of a draw.
type DrawStatus string

const (
	DrawStatusOpen               DrawStatus = "open"
	DrawStatusAwaitingResolution DrawStatus = "awaiting_resolution"
	DrawStatusCompleted          DrawStatus = "completed"
)

// Draw represents one sales-window-to-settlement cycle.
type Draw struct {
	ID                  int64      `json:"id"`
	Status              DrawStatus `json:"status"`
	PrizePool           int64      `json:"prize_pool"`   // sum of ticket prices, smallest unit
	TicketCount         int64      `json:"ticket_count"` // tickets sold against this draw
	Participants        []string   `json:"participants"` // each buyer recorded once
	WinningMain         []int      `json:"winning_main,omitempty"`
	WinningBonus        []int      `json:"winning_bonus,omitempty"`
	RandomnessRequested bool       `json:"randomness_requested"`
	Completed           bool       `json:"completed"`
	WindowStart         time.Time  `json:"window_start"`
	WindowEnd           time.Time  `json:"window_end"` // start + window duration
	Winners             []Winner   `json:"winners,omitempty"`
	CompletedAt         time.Time  `json:"completed_at,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Ticket represents a purchased ticket. Immutable once created and owned by the
// draw it was purchased under.
type Ticket struct {
	ID          string    `json:"id"`
	DrawID      int64     `json:"draw_id"`
	Participant string    `json:"participant"`
	Main        []int     `json:"main"`  // sorted ascending
	Bonus       []int     `json:"bonus"` // sorted ascending
	PurchasedAt time.Time `json:"purchased_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Winner records one winning ticket. A participant holding several winning
// tickets appears once per ticket.
type Winner struct {
	TicketID    string `json:"ticket_id"`
	Participant string `json:"participant"`
	Prize       int64  `json:"prize"`
}

// SettlementResult summarises a completed settlement.
type SettlementResult struct {
	DrawID         int64     `json:"draw_id"`
	WinningMain    []int     `json:"winning_main"`
	WinningBonus   []int     `json:"winning_bonus"`
	Pool           int64     `json:"pool"`
	HouseFee       int64     `json:"house_fee"`
	PrizePerWinner int64     `json:"prize_per_winner"`
	Winners        []Winner  `json:"winners"`
	SettledAt      time.Time `json:"settled_at"`
}

// Status is a read-only snapshot of the current draw and engine state.
type Status struct {
	DrawID      int64      `json:"draw_id"`
	Status      DrawStatus `json:"status"`
	PrizePool   int64      `json:"prize_pool"`
	TicketCount int64      `json:"ticket_count"`
	WindowStart time.Time  `json:"window_start"`
	WindowEnd   time.Time  `json:"window_end"`
	Paused      bool       `json:"paused"`
}

// Params holds the fixed engine configuration. Supplied once at initialization
// and immutable for the life of the engine instance.
type Params struct {
	TicketPrice        int64         `json:"ticket_price"`
	HouseFeePercent    int64         `json:"house_fee_percent"`
	WindowDuration     time.Duration `json:"window_duration"`
	MainCount          int           `json:"main_count"`
	MainMax            int           `json:"main_max"`
	BonusCount         int           `json:"bonus_count"`
	BonusMax           int           `json:"bonus_max"`
	OperatorID         string        `json:"operator_id"`
	RandomnessSourceID string        `json:"randomness_source_id"`
	PotAccount         string        `json:"pot_account"`
}

// WordCount returns how many random words one resolution consumes.
func (p Params) WordCount() int { return p.MainCount + p.BonusCount }

// Default configuration values (EuroMillions style: 5 of 50 plus 2 of 12).
const (
	DefaultTicketPrice     = 1_000_000 // 0.01 in smallest (1e-8) units
	DefaultHouseFeePercent = 1
	DefaultWindowDuration  = 7 * 24 * time.Hour
	DefaultMainCount       = 5
	DefaultMainMax         = 50
	DefaultBonusCount      = 2
	DefaultBonusMax        = 12
	DefaultPotAccount      = "drawd-pot"
)

// DefaultParams returns the reference configuration with the supplied trusted
// identities.
func DefaultParams(operatorID, randomnessSourceID string) Params {
	return Params{
		TicketPrice:        DefaultTicketPrice,
		HouseFeePercent:    DefaultHouseFeePercent,
		WindowDuration:     DefaultWindowDuration,
		MainCount:          DefaultMainCount,
		MainMax:            DefaultMainMax,
		BonusCount:         DefaultBonusCount,
		BonusMax:           DefaultBonusMax,
		OperatorID:         operatorID,
		RandomnessSourceID: randomnessSourceID,
		PotAccount:         DefaultPotAccount,
	}
}
