package lottery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore provides an in-memory implementation of Store. It backs the unit
// tests and can serve single-process deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	draws    map[int64]Draw
	tickets  map[string]Ticket
	requests map[string]int64
	current  int64
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		draws:    make(map[int64]Draw),
		tickets:  make(map[string]Ticket),
		requests: make(map[string]int64),
	}
}

func (s *MemoryStore) CreateDraw(ctx context.Context, draw Draw) (Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.draws[draw.ID]; ok {
		return Draw{}, fmt.Errorf("draw %d already exists", draw.ID)
	}
	now := time.Now().UTC()
	draw.CreatedAt = now
	draw.UpdatedAt = now
	s.draws[draw.ID] = draw
	if draw.ID > s.current {
		s.current = draw.ID
	}
	return draw, nil
}

func (s *MemoryStore) GetDraw(ctx context.Context, drawID int64) (Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draw, ok := s.draws[drawID]
	if !ok {
		return Draw{}, ErrDrawNotFound
	}
	return draw, nil
}

func (s *MemoryStore) CurrentDraw(ctx context.Context) (Draw, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	draw, ok := s.draws[s.current]
	if !ok {
		return Draw{}, ErrDrawNotFound
	}
	return draw, nil
}

func (s *MemoryStore) UpdateDraw(ctx context.Context, draw Draw) (Draw, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.draws[draw.ID]; !ok {
		return Draw{}, ErrDrawNotFound
	}
	draw.UpdatedAt = time.Now().UTC()
	s.draws[draw.ID] = draw
	return draw, nil
}

func (s *MemoryStore) CreateTicket(ctx context.Context, ticket Ticket) (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ticket.ID = uuid.NewString()
	ticket.CreatedAt = time.Now().UTC()
	s.tickets[ticket.ID] = ticket
	return ticket, nil
}

func (s *MemoryStore) DeleteTicket(ctx context.Context, ticketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tickets, ticketID)
	return nil
}

func (s *MemoryStore) ListTickets(ctx context.Context, drawID int64) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Ticket
	for _, t := range s.tickets {
		if t.DrawID == drawID {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) ListTicketsByParticipant(ctx context.Context, drawID int64, participant string) ([]Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []Ticket
	for _, t := range s.tickets {
		if t.DrawID == drawID && t.Participant == participant {
			result = append(result, t)
		}
	}
	return result, nil
}

func (s *MemoryStore) CreateRandomnessRequest(ctx context.Context, token string, drawID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.requests[token]; ok {
		return fmt.Errorf("randomness request %s already exists", token)
	}
	s.requests[token] = drawID
	return nil
}

func (s *MemoryStore) GetRandomnessRequest(ctx context.Context, token string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	drawID, ok := s.requests[token]
	if !ok {
		return 0, ErrRequestNotFound
	}
	return drawID, nil
}

func (s *MemoryStore) DeleteRandomnessRequest(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.requests, token)
	return nil
}

// MockBank is an in-memory Bank for tests, with optional failure injection.
type MockBank struct {
	mu       sync.Mutex
	balances map[string]int64
	// FailTransfersTo aborts any transfer whose destination matches, to
	// exercise the fatal settlement path.
	FailTransfersTo map[string]bool
}

// NewMockBank creates a mock bank.
func NewMockBank() *MockBank {
	return &MockBank{
		balances:        make(map[string]int64),
		FailTransfersTo: make(map[string]bool),
	}
}

// Fund credits an account directly.
func (b *MockBank) Fund(account string, amount int64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[account] += amount
}

func (b *MockBank) Transfer(ctx context.Context, from, to string, amount int64, reference string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.FailTransfersTo[to] {
		return fmt.Errorf("transfer to %s rejected", to)
	}
	if amount < 0 {
		return fmt.Errorf("negative transfer amount")
	}
	if b.balances[from] < amount {
		return fmt.Errorf("insufficient balance: %s has %d, needs %d", from, b.balances[from], amount)
	}
	b.balances[from] -= amount
	b.balances[to] += amount
	return nil
}

func (b *MockBank) Balance(ctx context.Context, account string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[account], nil
}
