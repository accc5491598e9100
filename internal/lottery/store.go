package lottery

import "context"

// Store defines the durable draw ledger: all historical and current draws, the
// tickets sold against each, and the live randomness request mappings. It is
// the single source of truth; historical draws are retained forever.
type Store interface {
	// Draw operations
	CreateDraw(ctx context.Context, draw Draw) (Draw, error)
	GetDraw(ctx context.Context, drawID int64) (Draw, error)
	// CurrentDraw returns the draw with the highest identifier, or
	// ErrDrawNotFound when no draw exists yet.
	CurrentDraw(ctx context.Context) (Draw, error)
	UpdateDraw(ctx context.Context, draw Draw) (Draw, error)

	// Ticket operations. DeleteTicket removes a ticket whose purchase could
	// not be completed; it is never called on a settled draw.
	CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error)
	DeleteTicket(ctx context.Context, ticketID string) error
	ListTickets(ctx context.Context, drawID int64) ([]Ticket, error)
	ListTicketsByParticipant(ctx context.Context, drawID int64, participant string) ([]Ticket, error)

	// Randomness request mappings: token -> draw awaiting resolution.
	// A mapping is created once and deleted exactly once when consumed.
	CreateRandomnessRequest(ctx context.Context, token string, drawID int64) error
	GetRandomnessRequest(ctx context.Context, token string) (int64, error)
	DeleteRandomnessRequest(ctx context.Context, token string) error
}

// Bank is the payment/settlement rail boundary. Transfers are push-style and
// all-or-nothing: an error means no value moved.
type Bank interface {
	// Transfer moves amount from one account to another, recording reference
	// for audit.
	Transfer(ctx context.Context, from, to string, amount int64, reference string) error
	// Balance reports the current balance of an account.
	Balance(ctx context.Context, account string) (int64, error)
}
