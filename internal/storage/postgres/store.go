// Package postgres implements the durable draw ledger on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/openlotto/drawd/internal/lottery"
)

// Store implements lottery.Store backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ lottery.Store = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// --- Draws ------------------------------------------------------------------

func (s *Store) CreateDraw(ctx context.Context, draw lottery.Draw) (lottery.Draw, error) {
	now := time.Now().UTC()
	draw.CreatedAt = now
	draw.UpdatedAt = now

	participantsJSON, winnersJSON, mainJSON, bonusJSON, err := marshalDrawFields(draw)
	if err != nil {
		return lottery.Draw{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO draws (
			id, status, prize_pool, ticket_count, participants,
			winning_main, winning_bonus, randomness_requested, completed,
			window_start, window_end, winners, completed_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, draw.ID, draw.Status, draw.PrizePool, draw.TicketCount, participantsJSON,
		mainJSON, bonusJSON, draw.RandomnessRequested, draw.Completed,
		draw.WindowStart, draw.WindowEnd, winnersJSON, nullTime(draw.CompletedAt),
		draw.CreatedAt, draw.UpdatedAt)
	if err != nil {
		return lottery.Draw{}, err
	}
	return draw, nil
}

func (s *Store) GetDraw(ctx context.Context, drawID int64) (lottery.Draw, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, prize_pool, ticket_count, participants,
		       winning_main, winning_bonus, randomness_requested, completed,
		       window_start, window_end, winners, completed_at, created_at, updated_at
		FROM draws
		WHERE id = $1
	`, drawID)
	return scanDraw(row)
}

func (s *Store) CurrentDraw(ctx context.Context) (lottery.Draw, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, status, prize_pool, ticket_count, participants,
		       winning_main, winning_bonus, randomness_requested, completed,
		       window_start, window_end, winners, completed_at, created_at, updated_at
		FROM draws
		ORDER BY id DESC
		LIMIT 1
	`)
	return scanDraw(row)
}

func (s *Store) UpdateDraw(ctx context.Context, draw lottery.Draw) (lottery.Draw, error) {
	draw.UpdatedAt = time.Now().UTC()

	participantsJSON, winnersJSON, mainJSON, bonusJSON, err := marshalDrawFields(draw)
	if err != nil {
		return lottery.Draw{}, err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE draws
		SET status = $2, prize_pool = $3, ticket_count = $4, participants = $5,
		    winning_main = $6, winning_bonus = $7, randomness_requested = $8,
		    completed = $9, winners = $10, completed_at = $11, updated_at = $12
		WHERE id = $1
	`, draw.ID, draw.Status, draw.PrizePool, draw.TicketCount, participantsJSON,
		mainJSON, bonusJSON, draw.RandomnessRequested, draw.Completed,
		winnersJSON, nullTime(draw.CompletedAt), draw.UpdatedAt)
	if err != nil {
		return lottery.Draw{}, err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return lottery.Draw{}, lottery.ErrDrawNotFound
	}
	return draw, nil
}

// --- Tickets ----------------------------------------------------------------

func (s *Store) CreateTicket(ctx context.Context, ticket lottery.Ticket) (lottery.Ticket, error) {
	if ticket.ID == "" {
		ticket.ID = uuid.NewString()
	}
	ticket.CreatedAt = time.Now().UTC()

	mainJSON, err := json.Marshal(ticket.Main)
	if err != nil {
		return lottery.Ticket{}, err
	}
	bonusJSON, err := json.Marshal(ticket.Bonus)
	if err != nil {
		return lottery.Ticket{}, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets (id, draw_id, participant, main, bonus, purchased_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ticket.ID, ticket.DrawID, ticket.Participant, mainJSON, bonusJSON,
		ticket.PurchasedAt, ticket.CreatedAt)
	if err != nil {
		return lottery.Ticket{}, err
	}
	return ticket, nil
}

func (s *Store) DeleteTicket(ctx context.Context, ticketID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM tickets WHERE id = $1
	`, ticketID)
	return err
}

func (s *Store) ListTickets(ctx context.Context, drawID int64) ([]lottery.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draw_id, participant, main, bonus, purchased_at, created_at
		FROM tickets
		WHERE draw_id = $1
		ORDER BY created_at
	`, drawID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

func (s *Store) ListTicketsByParticipant(ctx context.Context, drawID int64, participant string) ([]lottery.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, draw_id, participant, main, bonus, purchased_at, created_at
		FROM tickets
		WHERE draw_id = $1 AND participant = $2
		ORDER BY created_at
	`, drawID, participant)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTickets(rows)
}

// --- Randomness requests ----------------------------------------------------

func (s *Store) CreateRandomnessRequest(ctx context.Context, token string, drawID int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO randomness_requests (token, draw_id, created_at)
		VALUES ($1, $2, $3)
	`, token, drawID, time.Now().UTC())
	return err
}

func (s *Store) GetRandomnessRequest(ctx context.Context, token string) (int64, error) {
	var drawID int64
	err := s.db.QueryRowContext(ctx, `
		SELECT draw_id FROM randomness_requests WHERE token = $1
	`, token).Scan(&drawID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, lottery.ErrRequestNotFound
	}
	if err != nil {
		return 0, err
	}
	return drawID, nil
}

func (s *Store) DeleteRandomnessRequest(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM randomness_requests WHERE token = $1
	`, token)
	return err
}

// --- helpers ----------------------------------------------------------------

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraw(row rowScanner) (lottery.Draw, error) {
	var (
		draw            lottery.Draw
		participantsRaw []byte
		mainRaw         []byte
		bonusRaw        []byte
		winnersRaw      []byte
		completedAt     sql.NullTime
	)

	err := row.Scan(&draw.ID, &draw.Status, &draw.PrizePool, &draw.TicketCount,
		&participantsRaw, &mainRaw, &bonusRaw, &draw.RandomnessRequested,
		&draw.Completed, &draw.WindowStart, &draw.WindowEnd, &winnersRaw,
		&completedAt, &draw.CreatedAt, &draw.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return lottery.Draw{}, lottery.ErrDrawNotFound
	}
	if err != nil {
		return lottery.Draw{}, err
	}

	if len(participantsRaw) > 0 {
		_ = json.Unmarshal(participantsRaw, &draw.Participants)
	}
	if len(mainRaw) > 0 {
		_ = json.Unmarshal(mainRaw, &draw.WinningMain)
	}
	if len(bonusRaw) > 0 {
		_ = json.Unmarshal(bonusRaw, &draw.WinningBonus)
	}
	if len(winnersRaw) > 0 {
		_ = json.Unmarshal(winnersRaw, &draw.Winners)
	}
	if completedAt.Valid {
		draw.CompletedAt = completedAt.Time
	}
	return draw, nil
}

func collectTickets(rows *sql.Rows) ([]lottery.Ticket, error) {
	var result []lottery.Ticket
	for rows.Next() {
		var (
			ticket   lottery.Ticket
			mainRaw  []byte
			bonusRaw []byte
		)
		if err := rows.Scan(&ticket.ID, &ticket.DrawID, &ticket.Participant,
			&mainRaw, &bonusRaw, &ticket.PurchasedAt, &ticket.CreatedAt); err != nil {
			return nil, err
		}
		if len(mainRaw) > 0 {
			_ = json.Unmarshal(mainRaw, &ticket.Main)
		}
		if len(bonusRaw) > 0 {
			_ = json.Unmarshal(bonusRaw, &ticket.Bonus)
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}

func marshalDrawFields(draw lottery.Draw) (participants, winners, main, bonus []byte, err error) {
	if participants, err = json.Marshal(draw.Participants); err != nil {
		return
	}
	if winners, err = json.Marshal(draw.Winners); err != nil {
		return
	}
	if main, err = json.Marshal(draw.WinningMain); err != nil {
		return
	}
	bonus, err = json.Marshal(draw.WinningBonus)
	return
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
