package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/vibin/lead-assistant/config"
	httpHandler "github.com/vibin/lead-assistant/internal/adapters/primary/http"
	"github.com/vibin/lead-assistant/internal/adapters/primary/whatsapp"
	"github.com/vibin/lead-assistant/internal/adapters/secondary/analyzer"
	"github.com/vibin/lead-assistant/internal/adapters/secondary/database"
	"github.com/vibin/lead-assistant/internal/adapters/secondary/llm"
	"github.com/vibin/lead-assistant/internal/adapters/secondary/repository"
	"github.com/vibin/lead-assistant/internal/clock"
	"github.com/vibin/lead-assistant/internal/core/domain"
	"github.com/vibin/lead-assistant/internal/core/services"
	"github.com/vibin/lead-assistant/internal/logger"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to config file (.json, .yaml)")
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	initConfig := flag.String("init-config", "", "Write the default configuration to this path and exit")
	issueToken := flag.Bool("issue-admin-token", false, "Print an admin API token and exit")
	flag.Parse()

	// Setup logger
	logLevel := slog.LevelInfo
	if *debugMode {
		logLevel = slog.LevelDebug
	}
	log := logger.New(logLevel, os.Stdout)

	if *initConfig != "" {
		if err := config.SaveConfig(config.DefaultConfig(), *initConfig); err != nil {
			log.Error("Failed to write configuration", "error", err)
			os.Exit(1)
		}
		log.Info("Default configuration written", "path", *initConfig)
		return
	}

	loaded, err := config.LoadDotEnv()
	if err != nil {
		log.Error("Failed to load .env", "error", err)
		os.Exit(1)
	}
	if len(loaded) > 0 {
		log.Info("Loaded environment files", "files", loaded)
	}

	cfg, err := loadConfig(*configPath, log)
	if err != nil {
		log.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		log.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	if *issueToken {
		token, err := httpHandler.IssueToken(cfg.Admin.JWTSecret, cfg.Bot.AdminID, cfg.Admin.TokenTTL.Std(), time.Now())
		if err != nil {
			log.Error("Failed to issue admin token", "error", err)
			os.Exit(1)
		}
		fmt.Println(token)
		return
	}

	if err := run(cfg, log); err != nil {
		log.Error("Bot stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Bot exited")
}

// loadConfig reads the explicit path, then CONFIG_PATH or the default
// location, and falls back to the built-in defaults
func loadConfig(explicit string, log logger.Logger) (*config.Config, error) {
	if explicit != "" {
		log.Info("Loading configuration", "path", explicit)
		return config.LoadConfig(explicit)
	}

	path := config.GetConfigPath()
	cfg, err := config.LoadConfig(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info("Using default configuration")
		return config.DefaultConfig(), nil
	}
	if err == nil {
		log.Info("Loaded configuration", "path", path)
	}
	return cfg, err
}

func run(cfg *config.Config, log logger.Logger) error {
	log.Info("Starting lead assistant", "bot", cfg.WhatsApp.BotName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize adapters
	store, err := database.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	answers, err := llm.NewAnswerAdapter(ctx, &cfg.LLM, cfg.Knowledge, log)
	if err != nil {
		return fmt.Errorf("init answer provider: %w", err)
	}

	leadAnalyzer, err := analyzer.NewOpenAIAnalyzer(analyzer.Config{
		APIKey:           cfg.Analyzer.APIKey,
		BaseURL:          cfg.Analyzer.BaseURL,
		Model:            cfg.Analyzer.Model,
		MaxTokens:        cfg.Analyzer.MaxTokens,
		NoInterestMarker: cfg.Leads.NoInterestMarker,
	}, log)
	if err != nil {
		return fmt.Errorf("init lead analyzer: %w", err)
	}

	transport, err := whatsapp.NewWhatsAppAdapter(&cfg.WhatsApp, log)
	if err != nil {
		return fmt.Errorf("init whatsapp: %w", err)
	}

	// Core services
	clk := clock.Real{}
	notifier := services.NewNotifier(transport, cfg.Bot.ManagerChatID, cfg.Bot.AdminID, log)
	ratings := services.NewRatingTracker(
		repository.NewMemorySessionStore[string, *services.RatingSession](),
		clk, transport, store,
		cfg.Rating.PromptDelay.Std(), cfg.Rating.Expiry.Std(),
		log,
	)
	leads := services.NewLeadTracker(
		repository.NewMemorySessionStore[string, *domain.LeadSession](),
		clk, leadAnalyzer, store, notifier,
		services.LeadTrackerConfig{
			InactivityWindow: cfg.Leads.InactivityWindow.Std(),
			SweepInterval:    cfg.Leads.SweepInterval.Std(),
			StaleAfter:       cfg.Leads.StaleAfter.Std(),
			AnalysisTimeout:  cfg.Leads.AnalysisTimeout.Std(),
			MaxTurns:         cfg.Leads.MaxTurns,
			NoInterestMarker: cfg.Leads.NoInterestMarker,
		},
		log,
	)
	onboarding := services.NewOnboarding(repository.NewMemorySessionStore[string, *services.OnboardingForm](), store, transport, log)
	conversation := services.NewConversationService(
		answers, store, store, transport,
		ratings, leads, onboarding,
		cfg.Bot.ManagerChatID, cfg.LLM.Timeout.Std(),
		log,
	)
	admin := services.NewAdminService(store, transport, ratings, leads, log)
	transport.SetHandler(conversation)

	// HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler.NewHandler(admin, transport, cfg, log),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 2)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		leads.Run(ctx)
	}()

	go func() {
		log.Info("Starting HTTP server", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	go func() {
		if err := transport.Start(ctx); err != nil {
			errCh <- fmt.Errorf("whatsapp: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down...")
	case runErr = <-errCh:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := transport.Disconnect(); err != nil {
		log.Error("Failed to disconnect WhatsApp", "error", err)
	}
	wg.Wait()

	return runErr
}
