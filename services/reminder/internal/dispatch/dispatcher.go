package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/twclinics/groupbook/services/reminder/internal/notify"
	"github.com/twclinics/groupbook/services/reminder/internal/storage"
)

// Store is the appointment query the dispatcher needs.
type Store interface {
	ListConfirmedForDate(ctx context.Context, date string) ([]storage.Appointment, error)
}

// Result summarizes one dispatch run. Success is false only when the
// store itself was unreachable; individual send failures are counted,
// not fatal.
type Result struct {
	Success bool `json:"success"`
	Sent    int  `json:"sent"`
	Failed  int  `json:"failed"`
}

// Dispatcher sends next-day reminders for confirmed appointments. A run
// is one pass over tomorrow's confirmed bookings; there is no cross-run
// ledger, so re-invoking a partially completed run can re-send.
type Dispatcher struct {
	store  Store
	sender notify.Sender
	logger *slog.Logger
	delay  time.Duration
	now    func() time.Time
}

type Config struct {
	// Delay is the pause between consecutive sends, respecting the chat
	// platform's outbound rate limits.
	Delay time.Duration
	// Now overrides the clock for tests.
	Now func() time.Time
}

func New(store Store, sender notify.Sender, logger *slog.Logger, cfg Config) *Dispatcher {
	if cfg.Delay <= 0 {
		cfg.Delay = 500 * time.Millisecond
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Dispatcher{
		store:  store,
		sender: sender,
		logger: logger,
		delay:  cfg.Delay,
		now:    cfg.Now,
	}
}

// Run dispatches reminders for tomorrow's confirmed appointments and
// reports the aggregate counts.
func (d *Dispatcher) Run(ctx context.Context) Result {
	target := d.now().UTC().AddDate(0, 0, 1).Format("2006-01-02")

	appts, err := d.store.ListConfirmedForDate(ctx, target)
	if err != nil {
		d.logger.Error("reminder run aborted, store unreachable", "date", target, "err", err)
		return Result{Success: false}
	}

	var res Result
	res.Success = true
	for i, a := range appts {
		if i > 0 {
			select {
			case <-ctx.Done():
				d.logger.Warn("reminder run cancelled mid-flight", "date", target, "sent", res.Sent, "failed", res.Failed)
				return res
			case <-time.After(d.delay):
			}
		}

		if a.RequesterID == "" {
			res.Failed++
			d.logger.Warn("no requester recorded, reminder skipped", "appointment_id", a.ID)
			continue
		}

		if err := d.sender.Send(ctx, a.RequesterID, reminderText(a)); err != nil {
			res.Failed++
			d.logger.Error("reminder send failed", "appointment_id", a.ID, "provider", d.sender.ProviderID(), "err", err)
			continue
		}
		res.Sent++
	}

	d.logger.Info("reminder run finished", "date", target, "sent", res.Sent, "failed", res.Failed)
	return res
}

func reminderText(a storage.Appointment) string {
	return fmt.Sprintf("提醒您，%s 您有預約 🔔\n姓名：%s\n療程：%s\n時段：%s\n如需更改請與診所聯繫。",
		a.Date, a.CustomerName, a.Service, a.TimeSlot)
}
