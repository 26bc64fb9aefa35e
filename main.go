package main

import (
	"context"
	"expvar"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"herald/internal"
	"herald/pkg/chat/slack"
	"herald/pkg/providers/github"
	"herald/pkg/storage/gormstore"
	"herald/webhook"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func main() {
	logger := internal.NewLogger("server")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	flag.Parse()

	config, err := internal.LoadConfig(*configPath)
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	ctx := context.Background()

	store, err := gormstore.Open(gormstore.Config{
		Driver:      config.Storage.Driver,
		DSN:         config.Storage.DSN,
		AutoMigrate: config.Storage.AutoMigrate,
	})
	if err != nil {
		logger.Fatalf("storage: %v", err)
	}
	defer store.Close()

	state := internal.NewStateStore()
	snap, err := store.Load(ctx)
	if err != nil {
		logger.Fatalf("load state snapshot: %v", err)
	}
	state.Restore(snap)
	logger.Printf("restored state for %d repositories", len(snap.Repos))

	source, err := github.NewClient(ctx, github.Config{
		Token:   config.GitHub.Token,
		BaseURL: config.GitHub.BaseURL,
	})
	if err != nil {
		logger.Fatalf("github client: %v", err)
	}
	chat := slack.NewClient(slack.Config{Token: config.Slack.Token})

	exporter, err := internal.NewExporter(config.Export)
	if err != nil {
		logger.Fatalf("exporter: %v", err)
	}
	defer exporter.Close()

	orchestrator := internal.NewOrchestrator(internal.OrchestratorOptions{
		Repositories: config.Repositories,
		Configs:      internal.NewConfigCache(source, config.ConfigFile),
		State:        state,
		Store:        store,
		Source:       source,
		Chat:         chat,
		Export:       exporter,
		Hosts:        config.GitHub.Hosts,
	})

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodPost, config.WebhookPath,
		webhook.NewGitHubHandler(orchestrator, config.Server.MaxBodyBytes))
	router.Method(http.MethodPost, config.Slack.EventsPath,
		webhook.NewSlackHandler(orchestrator, config.Slack.SigningSecret, config.Server.MaxBodyBytes))
	router.Method(http.MethodGet, config.Server.MetricsPath, expvar.Handler())

	handler := internal.NewRateLimitHandler(router,
		config.Server.RateLimitRPS, config.Server.RateLimitBurst, 10*time.Minute)

	addr := ":" + strconv.Itoa(config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: time.Duration(config.Server.ReadHeaderMS) * time.Millisecond,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Printf("listening on %s", addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("shutdown: %v", err)
	}
	if err := store.Save(shutdownCtx, state.Snapshot()); err != nil {
		logger.Printf("final state snapshot: %v", err)
	}
}
