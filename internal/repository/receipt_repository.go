package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

// ReceiptRepo persists booking receipts.  Receipts are keyed by the
// backend's booking id so a redelivered message overwrites instead of
// duplicating.  All timestamps are stored in UTC.
type ReceiptRepo struct {
	db *sql.DB
}

// NewReceiptRepo returns a new ReceiptRepo bound to the given database.
func NewReceiptRepo(db *sql.DB) *ReceiptRepo { return &ReceiptRepo{db: db} }

const receiptsTable = `CREATE TABLE IF NOT EXISTS booking_receipts (
	booking_id          BIGINT       NOT NULL PRIMARY KEY,
	subject             VARCHAR(191) NOT NULL,
	showtime_id         BIGINT       NOT NULL,
	screen_id           BIGINT       NOT NULL,
	movie_title         VARCHAR(255) NOT NULL,
	start_time          DATETIME     NOT NULL,
	seats               JSON         NOT NULL,
	total_amount_cents  BIGINT       NOT NULL,
	confirmed_at        DATETIME     NOT NULL,
	INDEX idx_receipts_subject (subject, confirmed_at)
)`

// EnsureSchema creates the booking_receipts table when it does not exist.
func (r *ReceiptRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, receiptsTable)
	return err
}

// Save inserts or replaces the receipt with the same booking id.
func (r *ReceiptRepo) Save(ctx context.Context, rc model.Receipt) error {
	if rc.BookingID <= 0 || rc.Subject == "" {
		return ErrInvalidReceipt
	}
	seats, err := json.Marshal(rc.SeatNumbers)
	if err != nil {
		return fmt.Errorf("encode seats: %w", err)
	}
	const q = `INSERT INTO booking_receipts
		(booking_id, subject, showtime_id, screen_id, movie_title, start_time, seats, total_amount_cents, confirmed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
		subject = VALUES(subject), showtime_id = VALUES(showtime_id), screen_id = VALUES(screen_id),
		movie_title = VALUES(movie_title), start_time = VALUES(start_time), seats = VALUES(seats),
		total_amount_cents = VALUES(total_amount_cents), confirmed_at = VALUES(confirmed_at)`
	_, err = r.db.ExecContext(ctx, q,
		rc.BookingID, rc.Subject, rc.ShowtimeID, rc.ScreenID, rc.MovieTitle,
		rc.StartTime.UTC(), seats, rc.TotalAmountCents, rc.ConfirmedAt.UTC())
	return err
}

const receiptColumns = `booking_id, subject, showtime_id, screen_id, movie_title, start_time, seats, total_amount_cents, confirmed_at`

// Get returns one receipt by booking id, or ErrNotFound.
func (r *ReceiptRepo) Get(ctx context.Context, bookingID int64) (model.Receipt, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM booking_receipts WHERE booking_id = ?`, bookingID)
	rc, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Receipt{}, ErrNotFound
	}
	return rc, err
}

// ListBySubject returns the newest receipts of one user first.  limit is
// clamped to 1..100.
func (r *ReceiptRepo) ListBySubject(ctx context.Context, subject string, limit int) ([]model.Receipt, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+receiptColumns+` FROM booking_receipts WHERE subject = ? ORDER BY confirmed_at DESC, booking_id DESC LIMIT ?`,
		subject, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.Receipt{}
	for rows.Next() {
		rc, err := scanReceipt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReceipt(s scanner) (model.Receipt, error) {
	var (
		rc    model.Receipt
		seats []byte
	)
	if err := s.Scan(&rc.BookingID, &rc.Subject, &rc.ShowtimeID, &rc.ScreenID, &rc.MovieTitle,
		&rc.StartTime, &seats, &rc.TotalAmountCents, &rc.ConfirmedAt); err != nil {
		return model.Receipt{}, err
	}
	if len(seats) > 0 {
		if err := json.Unmarshal(seats, &rc.SeatNumbers); err != nil {
			return model.Receipt{}, fmt.Errorf("decode seats of booking %d: %w", rc.BookingID, err)
		}
	}
	return rc, nil
}
