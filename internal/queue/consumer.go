package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/cinema-seat-client/internal/model"
)

// ReceiptStore keeps consumed receipts.  *repository.ReceiptRepo
// implements it.
type ReceiptStore interface {
	Save(ctx context.Context, r model.Receipt) error
}

const (
	minBackoff   = time.Second
	maxBackoff   = 30 * time.Second
	retryPause   = time.Second
	prefetch     = 50
	storeTimeout = 5 * time.Second
)

// ConsumeReceipts connects to RabbitMQ, declares the booking.confirmed
// queue and stores every message in store.  It runs a reconnect loop with
// exponential backoff and only returns once ctx is cancelled.
func ConsumeReceipts(ctx context.Context, url string, store ReceiptStore, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("receipts-consumer")

	backoff := minBackoff
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}
		backoff = minBackoff // reset after successful connect

		err = consumeLoop(ctx, conn, store, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("consume loop ended, reconnecting", zap.Error(err))
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, store ReceiptStore, log *zap.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(prefetch, 0, false); err != nil {
		log.Warn("set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(BookingConfirmedQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.ConsumeWithContext(ctx, BookingConfirmedQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}
	log.Info("consuming receipts")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			ack(ctx, d, handleMessage(ctx, store, d.Body), log)
		}
	}
}

// acknowledger is the part of amqp.Delivery that ack needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func ack(ctx context.Context, d acknowledger, err error, log *zap.Logger) {
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, errPoison):
		log.Error("dropping message", zap.Error(err))
		_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
	default:
		log.Warn("store failed, requeueing", zap.Error(err))
		sleep(ctx, retryPause)
		_ = d.Nack(false, true)
	}
}

func handleMessage(ctx context.Context, store ReceiptStore, body []byte) error {
	ev, err := decodeEvent(body)
	if err != nil {
		return err
	}
	sctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()
	if err := store.Save(sctx, ev.Receipt); err != nil {
		return fmt.Errorf("save receipt %d: %w", ev.Receipt.BookingID, err)
	}
	return nil
}

// sleep waits for d or until ctx is done, reporting false in the latter
// case.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
