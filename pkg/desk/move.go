package desk

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// MoveResult is the outcome of a completed MoveTo.
type MoveResult struct {
	// Position is the last height observed when the stop was issued.
	Position Height
	// Overshoot is how far past the target the desk travelled before the
	// stop took mechanical effect. Overshoot beyond Options.Tolerance is
	// reported here rather than corrected automatically; a correcting
	// retry is the caller's call, since automatic correction risks
	// oscillation.
	Overshoot Height
}

// MoveTo drives the desk to the target height. The desk has no native
// go-to-position command, only continuous up/down plus asynchronous position
// notifications, so this is a client-side closed loop: issue one directional
// command, watch the notification stream, and stop when the target is
// reached or crossed.
//
// Every path that sets the desk in motion issues a stop before returning:
// on arrival, on stall, and on cancellation. The one exception is a dropped
// link, where no further writes are attempted.
func (s *Session) MoveTo(ctx context.Context, target Height) (MoveResult, error) {
	if !target.InRange() {
		return MoveResult{}, fmt.Errorf("%w: %s not in [%s, %s]", ErrOutOfRange, target, MinHeight, MaxHeight)
	}

	if !s.moving.CompareAndSwap(false, true) {
		return MoveResult{}, ErrBusy
	}
	defer s.moving.Store(false)

	// Register the watcher before the first command so no notification
	// emitted after the directional write can be missed.
	updates, cancelWatch := s.watch()
	defer cancelWatch()

	current, err := s.Position()
	if err != nil {
		return MoveResult{}, err
	}

	dist := target - current
	if dist.abs() <= s.opts.Deadband {
		// Already there. Stop defensively in case the desk is coasting.
		if err := s.Stop(); err != nil {
			return MoveResult{}, err
		}
		return MoveResult{Position: current}, nil
	}

	up := dist > 0
	cmd := commandDown
	if up {
		cmd = commandUp
	}
	slog.Debug("[desk] moving", "from", current, "to", target, "up", up)
	if err := s.writeCommand(cmd); err != nil {
		return MoveResult{}, err
	}

	last := current
	stall := time.NewTimer(s.opts.StallTimeout)
	defer stall.Stop()

	for {
		select {
		case <-s.closed:
			// Link dropped mid-move. The desk's own end-of-link handling is
			// all that stops it now; writing into a dead connection helps
			// nothing.
			return MoveResult{}, ErrDisconnected

		case <-ctx.Done():
			if err := s.stopWithin(s.opts.StopGrace); err != nil {
				slog.Warn("[desk] stop after cancellation failed", "error", err)
			}
			return MoveResult{}, fmt.Errorf("desk: move cancelled: %w", ctx.Err())

		case <-stall.C:
			// No progress inside the silence window: mechanical limit, jam,
			// or a silently dead link.
			if err := s.Stop(); err != nil {
				return MoveResult{}, err
			}
			return MoveResult{}, fmt.Errorf("%w: stuck at %s", ErrStalled, last)

		case p := <-updates:
			if p == last {
				// Duplicate notification. Not progress, so the stall timer
				// keeps running.
				continue
			}
			last = p
			d := target - p
			crossed := (d > 0) != up && d != 0
			if crossed || d.abs() <= s.opts.Deadband {
				if err := s.Stop(); err != nil {
					return MoveResult{}, err
				}
				res := MoveResult{Position: p}
				if crossed {
					res.Overshoot = d.abs()
				}
				if res.Overshoot > s.opts.Tolerance {
					slog.Warn("[desk] overshoot beyond tolerance", "target", target, "final", p, "overshoot", res.Overshoot)
				} else {
					slog.Debug("[desk] settled", "target", target, "final", p)
				}
				return res, nil
			}
			if !stall.Stop() {
				select {
				case <-stall.C:
				default:
				}
			}
			stall.Reset(s.opts.StallTimeout)
		}
	}
}

// stopWithin issues a stop but gives up waiting after the grace period, so a
// hung BLE stack cannot hold a cancelled move forever. The write itself is
// not aborted; it completes or fails on its own in the background.
func (s *Session) stopWithin(grace time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		return err
	case <-time.After(grace):
		return fmt.Errorf("desk: stop not acknowledged within %s", grace)
	}
}
