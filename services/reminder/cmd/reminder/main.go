package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/twclinics/groupbook/libs/config"
	"github.com/twclinics/groupbook/libs/db"
	"github.com/twclinics/groupbook/libs/httpx"
	"github.com/twclinics/groupbook/libs/kafkax"
	otelx "github.com/twclinics/groupbook/libs/otel"
	"github.com/twclinics/groupbook/libs/runtime"
	"github.com/twclinics/groupbook/services/reminder/internal/consumer"
	"github.com/twclinics/groupbook/services/reminder/internal/dispatch"
	"github.com/twclinics/groupbook/services/reminder/internal/inbox"
	"github.com/twclinics/groupbook/services/reminder/internal/notify"
	"github.com/twclinics/groupbook/services/reminder/internal/storage"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var lifecycleTopics = []string{
	"appointment.pending.v1",
	"appointment.confirmed.v1",
	"appointment.cancelled.v1",
	"appointment.completed.v1",
}

func main() {
	service := config.String("SERVICE_NAME", "reminder")
	port, err := config.Port("PORT", "8081")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	var sender notify.Sender
	if url := config.String("CHAT_WEBHOOK_URL", ""); url != "" {
		sender = notify.NewWebhookSender(url, config.String("CHAT_WEBHOOK_TOKEN", ""))
	} else {
		logger.Warn("no chat push channel configured, reminders will be dropped")
		sender = notify.NewNoopSender()
	}

	appts := storage.NewAppointmentReader(pool)
	lifecycle := storage.NewLifecycleRepository(pool)
	inboxRepo := inbox.NewRepository(pool)

	dispatcher := dispatch.New(appts, sender, logger, dispatch.Config{
		Delay: 500 * time.Millisecond,
	})

	brokers := config.String("KAFKA_BROKERS", "")
	for _, topic := range lifecycleTopics {
		if brokers == "" {
			break
		}
		c := consumer.New(logger, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: config.String("KAFKA_GROUP_ID", "reminder"),
			Topic:   topic,
		}, func(ctx context.Context, msg kafka.Message) error {
			var payload struct {
				AppointmentID int64  `json:"appointment_id"`
				ClinicID      int64  `json:"clinic_id"`
				Status        string `json:"status"`
				OccurredAt    string `json:"occurred_at"`
			}
			if err := json.Unmarshal(msg.Value, &payload); err != nil {
				logger.Error("invalid lifecycle payload", "topic", msg.Topic, "err", err)
				return nil
			}
			if payload.AppointmentID <= 0 || payload.Status == "" {
				logger.Error("missing lifecycle fields", "topic", msg.Topic)
				return nil
			}
			occurred, err := time.Parse(time.RFC3339, payload.OccurredAt)
			if err != nil {
				occurred = time.Now().UTC()
			}
			return lifecycle.Insert(ctx, storage.LifecycleEntry{
				AppointmentID: payload.AppointmentID,
				ClinicID:      payload.ClinicID,
				Status:        payload.Status,
				Payload:       msg.Value,
				OccurredAt:    occurred,
			})
		})
		go c.Run(ctx)
	}

	dispatchHour, err := strconv.Atoi(config.String("DISPATCH_HOUR_UTC", "9"))
	if err != nil || dispatchHour < 0 || dispatchHour > 23 {
		dispatchHour = 9
	}
	go runDaily(ctx, logger, dispatcher, dispatchHour)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/api/v1/dispatch", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		res := dispatcher.Run(r.Context())
		w.Header().Set("Content-Type", "application/json")
		if !res.Success {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(res)
	})
	mux.HandleFunc("/api/v1/history", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		id, err := strconv.ParseInt(r.URL.Query().Get("appointment_id"), 10, 64)
		if err != nil || id <= 0 {
			http.Error(w, "appointment_id required", http.StatusBadRequest)
			return
		}
		entries, err := lifecycle.ListByAppointment(r.Context(), id)
		if err != nil {
			logger.Error("history query failed", "appointment_id", id, "err", err)
			http.Error(w, "history query failed", http.StatusInternalServerError)
			return
		}
		type historyItem struct {
			Status     string `json:"status"`
			OccurredAt string `json:"occurred_at"`
		}
		items := make([]historyItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, historyItem{
				Status:     e.Status,
				OccurredAt: e.OccurredAt.UTC().Format(time.RFC3339),
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"history": items})
	})

	// In-memory limiter is enough here: the only expensive route is the
	// manual dispatch trigger and the service runs a single replica.
	rl := httpx.NewRateLimiter(30, time.Minute)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		rl.Middleware(),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "reminder")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

// runDaily fires the dispatcher once per day at the configured UTC hour.
func runDaily(ctx context.Context, logger *slog.Logger, d *dispatch.Dispatcher, hour int) {
	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), hour, 0, 0, 0, time.UTC)
		if !next.After(now) {
			next = next.AddDate(0, 0, 1)
		}
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		logger.Info("scheduled reminder run starting", "at", next.Format(time.RFC3339))
		res := d.Run(ctx)
		if !res.Success {
			logger.Error("scheduled reminder run failed wholesale")
		}
	}
}
