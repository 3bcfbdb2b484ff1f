package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"otpattend/internal/queue"
)

// Purger removes codes that can no longer be redeemed.
type Purger interface {
	PurgeExpiredOTPs(ctx context.Context) (int64, error)
}

// Worker consumes attendance events into the audit log and periodically
// purges expired OTP rows.
type Worker struct {
	Queue         queue.Queue
	Purger        Purger
	SweepInterval time.Duration
	Log           *zap.Logger
}

// Run blocks until ctx is cancelled or the queue closes its channel.
func (w *Worker) Run(ctx context.Context) error {
	log := w.Log
	if log == nil {
		log = zap.NewNop()
	}
	messages, err := w.Queue.Consume(ctx)
	if err != nil {
		return err
	}

	var sweep <-chan time.Time
	if w.Purger != nil && w.SweepInterval > 0 {
		ticker := time.NewTicker(w.SweepInterval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("worker stopped")
			return nil
		case msg, ok := <-messages:
			if !ok {
				log.Info("queue closed, worker stopped")
				return nil
			}
			w.handle(log, msg)
		case <-sweep:
			n, err := w.Purger.PurgeExpiredOTPs(ctx)
			if err != nil {
				log.Warn("purge expired otps failed", zap.Error(err))
				continue
			}
			if n > 0 {
				log.Info("purged expired otps", zap.Int64("count", n))
			}
		}
	}
}

func (w *Worker) handle(log *zap.Logger, msg queue.Message) {
	switch msg.Type {
	case queue.TypeAttendanceMarked:
		evt, err := queue.DecodeMarked(msg)
		if err != nil {
			log.Warn("dropping malformed event", zap.String("type", msg.Type), zap.Error(err))
			return
		}
		log.Info("attendance audit",
			zap.String("email", evt.Email),
			zap.Int64("class_id", evt.ClassID),
			zap.Time("marked_at", time.Unix(evt.Timestamp, 0).UTC()))
	default:
		log.Debug("ignoring event", zap.String("type", msg.Type))
	}
}
