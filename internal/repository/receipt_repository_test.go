package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

type rowStub struct {
	vals []any
	err  error
}

func (r rowStub) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *int64:
			*p = r.vals[i].(int64)
		case *string:
			*p = r.vals[i].(string)
		case *time.Time:
			*p = r.vals[i].(time.Time)
		case *[]byte:
			*p = r.vals[i].([]byte)
		}
	}
	return nil
}

func TestSave_RejectsIncompleteReceipt(t *testing.T) {
	repo := NewReceiptRepo(nil)
	assert.ErrorIs(t, repo.Save(context.Background(), model.Receipt{Subject: "42"}), ErrInvalidReceipt)
	assert.ErrorIs(t, repo.Save(context.Background(), model.Receipt{BookingID: 1}), ErrInvalidReceipt)
}

func TestScanReceipt(t *testing.T) {
	at := time.Date(2024, 5, 1, 18, 0, 0, 0, time.UTC)
	rc, err := scanReceipt(rowStub{vals: []any{
		int64(1001), "42", int64(7), int64(3), "Arrival", at, []byte("[4,5]"), int64(3000), at,
	}})
	require.NoError(t, err)
	assert.Equal(t, model.Receipt{
		BookingID: 1001, Subject: "42", ShowtimeID: 7, ScreenID: 3, MovieTitle: "Arrival",
		StartTime: at, SeatNumbers: []int{4, 5}, TotalAmountCents: 3000, ConfirmedAt: at,
	}, rc)

	_, err = scanReceipt(rowStub{vals: []any{
		int64(1), "42", int64(7), int64(3), "Arrival", at, []byte("{"), int64(3000), at,
	}})
	assert.Error(t, err)

	boom := errors.New("boom")
	_, err = scanReceipt(rowStub{err: boom})
	assert.ErrorIs(t, err, boom)
}
