package booking

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// connect opens a live channel session and joins the showtime's room.
func (v *View) connect(ctx context.Context) (Channel, error) {
	ch, err := v.opts.Dial(ctx)
	if err != nil {
		return nil, err
	}
	if err := ch.Join(ctx, v.showtime.ShowtimeID); err != nil {
		_ = ch.Close()
		return nil, err
	}
	v.chMu.Lock()
	defer v.chMu.Unlock()
	if v.closing {
		_ = ch.Close()
		return nil, ErrClosed
	}
	v.ch = ch
	return ch, nil
}

func (v *View) dropChannel(ch Channel) {
	v.chMu.Lock()
	if v.ch == ch {
		v.ch = nil
	}
	v.chMu.Unlock()
	_ = ch.Close()
}

// supervise reads events from the live channel and reconnects with
// exponential backoff whenever it drops.  ch is nil when the first
// connect failed.
func (v *View) supervise(ch Channel) {
	defer v.wg.Done()
	backoff := v.opts.ReconnectMin
	for {
		if ch != nil {
			err := v.pump(ch)
			v.dropChannel(ch)
			if v.ctx.Err() != nil {
				return
			}
			v.log.Warn("live channel dropped", zap.Error(err))
			if !v.post(v.onDisconnected) {
				return
			}
			ch = nil
		}

		t := time.NewTimer(backoff)
		select {
		case <-v.ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		next, err := v.connect(v.ctx)
		if err != nil {
			if v.ctx.Err() != nil {
				return
			}
			v.log.Warn("reconnect failed", zap.Error(err), zap.Duration("backoff", backoff))
			backoff = min(backoff*2, v.opts.ReconnectMax)
			continue
		}
		backoff = v.opts.ReconnectMin
		if !v.post(func() { v.onConnected(next, true) }) {
			return
		}
		ch = next
	}
}

// pump forwards events to the loop in arrival order.  post blocks until
// the loop has taken the event, so per-seat order is preserved.
func (v *View) pump(ch Channel) error {
	for {
		ev, err := ch.Next(v.ctx)
		if err != nil {
			return err
		}
		if !v.post(func() { v.applyEvent(ev) }) {
			return ErrClosed
		}
	}
}

func (v *View) onConnected(ch Channel, reconnect bool) {
	v.rec.Rebind(ch.ID())
	v.connected = true
	v.syncHolds()
	v.log.Info("live channel joined", zap.String("connection_id", ch.ID()))
	if !reconnect {
		return
	}
	if v.rec.Selection().Len() > 0 {
		v.suspect = true
	}
	v.notify(LevelInfo, "Live seat updates restored.")
	v.refreshAsync()
}

// onDisconnected marks any held selection as suspect: events may have
// been missed while the channel was down.
func (v *View) onDisconnected() {
	v.connected = false
	if v.rec.Selection().Len() > 0 {
		v.suspect = true
	}
	v.notify(LevelWarning, "Live seat updates were interrupted. Reconnecting...")
}
