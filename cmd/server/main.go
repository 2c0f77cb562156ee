package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echoMw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/cinema-seat-availability/internal/config"
	"github.com/iliyamo/cinema-seat-availability/internal/database"
	"github.com/iliyamo/cinema-seat-availability/internal/handler"
	"github.com/iliyamo/cinema-seat-availability/internal/hub"
	"github.com/iliyamo/cinema-seat-availability/internal/middleware"
	"github.com/iliyamo/cinema-seat-availability/internal/outbox"
	"github.com/iliyamo/cinema-seat-availability/internal/queue"
	"github.com/iliyamo/cinema-seat-availability/internal/repository"
	"github.com/iliyamo/cinema-seat-availability/internal/router"
	"github.com/iliyamo/cinema-seat-availability/internal/service"
	"github.com/iliyamo/cinema-seat-availability/internal/sweeper"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(cfg.Database())
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("db: %v", err)
		}
	}

	rdb := config.NewRedisClient() // nil when Redis is off or unreachable
	if rdb != nil {
		defer rdb.Close()
	}

	reservations := repository.NewReservationRepo(db)
	var showtimes repository.ShowtimeReader = repository.NewShowtimeRepo(db)
	if cc := config.LoadCatalogCacheConfig(); cc.Enabled {
		showtimes = repository.NewCachedShowtimes(showtimes, rdb, cc.TTL, cc.Prefix)
	}
	seats := repository.NewSeatRepo(db)
	payments := repository.NewPaymentRepo(db)

	seatHub := hub.New(hub.Options{SendBuffer: cfg.WSSendBuffer, IdleTimeout: cfg.WSIdleTimeout})
	mirror := outbox.NewRedisMirror(rdb)
	// One worker keeps broadcasts in commit order.
	broadcasts := outbox.New("broadcast", outbox.Options{QueueSize: cfg.OutboxQueueSize, Workers: 1, Mirror: mirror})
	notifications := outbox.New("notify", outbox.Options{QueueSize: cfg.OutboxQueueSize, Workers: 2, Mirror: mirror})

	reservationSvc := service.NewReservationService(service.ReservationDeps{
		DB:           db,
		Reservations: reservations,
		Showtimes:    showtimes,
		Seats:        seats,
		Hub:          seatHub,
		Outbox:       broadcasts,
		HoldTTL:      cfg.HoldTTL,
	})
	paymentSvc := service.NewPaymentService(service.PaymentDeps{
		DB:            db,
		Reservations:  reservations,
		Showtimes:     showtimes,
		Seats:         seats,
		Payments:      payments,
		Transactions:  repository.NewTransactionRepo(db),
		Tickets:       repository.NewTicketRepo(db),
		Hub:           seatHub,
		Broadcasts:    broadcasts,
		Notifications: notifications,
		Publisher:     queue.NewPublisher(cfg.AMQPURL),
	})

	sw := sweeper.New(db, reservations, seatHub, broadcasts, sweeper.Options{
		Interval:  cfg.SweepInterval,
		Backoff:   cfg.SweepBackoff,
		BatchSize: cfg.SweepBatchSize,
	})
	sw.Start(ctx)

	consumerDone := make(chan struct{})
	if cfg.BookingConsumerEnabled {
		go func() {
			defer close(consumerDone)
			queue.NewConsumer(cfg.AMQPURL, "logs").Run(ctx)
		}()
	} else {
		close(consumerDone)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.ErrorHandler
	e.Use(echoMw.Recover())
	e.Use(echoMw.RequestLoggerWithConfig(echoMw.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v echoMw.RequestLoggerValues) error {
			log.Printf("http: %s %s %d %s ip=%s", v.Method, v.URI, v.Status, v.Latency, v.RemoteIP)
			return nil
		},
	}))
	ops := &handler.OpsHandler{
		Outboxes:       []handler.StatsSource{broadcasts, notifications},
		Reconciliation: payments,
	}
	router.RegisterRoutes(e, router.Handlers{
		Reservations: handler.NewReservationHandler(reservationSvc),
		Payments:     handler.NewPaymentHandler(paymentSvc),
		SeatFeed:     handler.NewSeatFeedHandler(seatHub, reservationSvc, 10*time.Second),
		Ops:          ops,
	}, cfg.JWTSecret, middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb))

	go func() {
		addr := ":" + cfg.Port
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	// Stop taking requests first, then the producers of post-commit work,
	// then drain the queues that feed the hub and the broker.
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("http: shutdown: %v", err)
	}
	sw.Stop()
	if err := broadcasts.Close(shutdownCtx); err != nil {
		log.Printf("outbox[broadcast]: close: %v", err)
	}
	if err := notifications.Close(shutdownCtx); err != nil {
		log.Printf("outbox[notify]: close: %v", err)
	}
	seatHub.Close()
	<-consumerDone
}
