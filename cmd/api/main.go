package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gpcheckout.org/internal/auth"
	"gpcheckout.org/internal/cards"
	"gpcheckout.org/internal/checkout"
	"gpcheckout.org/internal/config"
	"gpcheckout.org/internal/httpapi"
	"gpcheckout.org/internal/ledger"
	ledgerpg "gpcheckout.org/internal/ledger/pg"
	"gpcheckout.org/internal/obs"
	"gpcheckout.org/internal/stream"
)

var version = "1.2.0"

// userDirectory narrows the auth store to the slice the orchestrator
// needs for payer references.
type userDirectory struct {
	store *auth.Store
}

func (d userDirectory) FindByID(ctx context.Context, id string) (checkout.User, error) {
	u, err := d.store.FindByID(ctx, id)
	if err != nil {
		return checkout.User{}, err
	}
	return checkout.User{ID: u.ID, Name: u.Name, Email: u.Email, PayerRef: u.PayerRef}, nil
}

func (d userDirectory) SetPayerRef(ctx context.Context, userID, payerRef string) error {
	return d.store.SetPayerRef(ctx, userID, payerRef)
}

func main() {
	obs.Init()
	obs.InitBuildInfo(version, os.Getenv("GPC_COMMIT"))

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// Ledger: Postgres when a DSN is configured, JSON files otherwise.
	var (
		store ledger.Store
		ready httpapi.ReadyProbe
	)
	if cfg.PGDSN != "" {
		pgStore, err := ledgerpg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open ledger db: %v", err)
		}
		defer pgStore.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := ledgerpg.Migrate(ctx, pgStore.DB()); err != nil {
			cancel()
			log.Fatalf("migrate ledger db: %v", err)
		}
		cancel()

		store = pgStore
		ready = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		fileStore, err := ledger.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("open ledger files: %v", err)
		}
		store = fileStore
	}

	cardStore, err := cards.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("open card store: %v", err)
	}
	userStore, err := auth.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatalf("open user store: %v", err)
	}

	events := stream.New()
	orchestrator := checkout.New(cfg, store, cardStore,
		checkout.WithUserDirectory(userDirectory{store: userStore}),
		checkout.WithStream(events),
	)

	api := httpapi.New(httpapi.Deps{
		Checkout: orchestrator,
		Auth:     auth.NewService(userStore),
		Ledger:   store,
		Cards:    cardStore,
		Events:   events,
		Ready:    ready,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		// SSE subscribers hold their response open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	log.Printf("Starting gpcheckout %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
