package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/time/rate"

	"referral_dashboard/internal/config"
	"referral_dashboard/internal/engine"
	"referral_dashboard/internal/httpapi"
	"referral_dashboard/internal/logbus"
	"referral_dashboard/internal/model"
	"referral_dashboard/internal/notify"
	"referral_dashboard/internal/provider"
	"referral_dashboard/internal/provider/standard"
	"referral_dashboard/internal/registry"
	"referral_dashboard/internal/store/sqlite"
)

func main() {
	configPath := flag.String("config", "./config.yaml", "path to config.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if errors.Is(err, os.ErrNotExist) {
		log.Printf("config %s not found, using defaults", *configPath)
		cfg, err = config.Default(), nil
	}
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	bus := logbus.New(200)
	bus.Log("info", "server starting", map[string]any{"addr": cfg.Server.Addr})

	ctx := context.Background()
	store, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("open sqlite: %v", err)
	}
	defer store.Close()

	notifier := notify.NewEmailNotifier(store, bus, cfg.Notify.EmailSummaryWindow())

	global := rate.NewLimiter(rate.Limit(cfg.Limits.GlobalQPS), cfg.Limits.GlobalBurst)
	reg := registry.New(registry.Options{
		Store:    store,
		Bus:      bus,
		Notifier: notifier,
		Factory: func(cred model.Credential, token *model.Token, observer provider.TokenObserver) provider.Client {
			return standard.New(cred, token, standard.Options{
				Provider: cfg.Provider,
				Proxy:    cfg.Proxy,
				Limits:   cfg.Limits,
				Bus:      bus,
				Limiter:  global,
				Observer: observer,
			})
		},
	})
	if err := reg.Restore(ctx); err != nil {
		log.Fatalf("restore accounts: %v", err)
	}

	agg := engine.New(engine.Options{
		Registry:  reg,
		Bus:       bus,
		Limits:    cfg.Limits,
		Aggregate: cfg.Aggregate,
		Payout:    cfg.Payout,
	})
	if saved, ok, err := store.GetPayoutSettings(ctx); err != nil {
		bus.Log("warn", "load payout settings failed", map[string]any{"error": err.Error()})
	} else if ok {
		agg.SetPayoutSettings(saved)
	}

	api := httpapi.New(httpapi.Options{
		Cfg:        cfg,
		Bus:        bus,
		Store:      store,
		Registry:   reg,
		Aggregator: agg,
	})

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-stop:
		bus.Log("info", "shutdown signal received", map[string]any{"signal": sig.String()})
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			bus.Log("error", "http server error", map[string]any{"error": err.Error()})
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	_ = server.Shutdown(shutdownCtx)
	_ = notifier.Close(shutdownCtx)
	bus.Log("info", "server stopped", nil)
	bus.Close()
}
