/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the liquidation engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env and parse command-line flags
  2. Initialize SQLite store
  3. Load specialty settings and physician roster from JSON files
  4. Create API handler and start the edit-buffer flusher
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  --port        HTTP server port (default: 8080, env PORT)
  --db          SQLite database path (default: liquidation.db, env DB_PATH)
                Use ":memory:" for an in-memory database
  --settings    Specialty settings JSON file (optional)
  --roster      Physician roster JSON file (optional)
  --log-format  Log format: text or json

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the edit buffer after one final flush
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server --db="./data/liquidation.db" --settings=./config/specialties.json

  # Run with in-memory database
  ./server --db=":memory:"

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/andes/liquidation-engine/api"
	"github.com/andes/liquidation-engine/factory"
	"github.com/andes/liquidation-engine/internal/logging"
	"github.com/andes/liquidation-engine/liquidation"
	"github.com/andes/liquidation-engine/store/sqlite"
)

type serverConfig struct {
	Port         int
	DBPath       string
	SettingsPath string
	RosterPath   string
	LogFormat    string
}

var cfg serverConfig

var rootCmd = &cobra.Command{
	Use:   "server",
	Short: "Medical liquidation calculation server",
	Long:  "Turns spreadsheet billing exports into per-physician, per-payer liquidation lines with a reviewable batch lifecycle.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	// .env values become flag defaults; explicit flags still win.
	_ = godotenv.Load()

	pf := rootCmd.PersistentFlags()
	pf.IntVar(&cfg.Port, "port", envInt("PORT", 8080), "HTTP server port")
	pf.StringVar(&cfg.DBPath, "db", envStr("DB_PATH", "liquidation.db"), "SQLite database path")
	pf.StringVar(&cfg.SettingsPath, "settings", os.Getenv("SETTINGS_PATH"), "Specialty settings JSON file")
	pf.StringVar(&cfg.RosterPath, "roster", os.Getenv("ROSTER_PATH"), "Physician roster JSON file")
	pf.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
}

func run() error {
	log := logging.Setup(cfg.LogFormat)

	// Initialize store
	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer store.Close()

	// Load configuration files
	f := factory.NewSettingsFactory()

	settings := map[string]liquidation.SchemeSettings{}
	if cfg.SettingsPath != "" {
		data, err := os.ReadFile(cfg.SettingsPath)
		if err != nil {
			return fmt.Errorf("failed to read settings file: %w", err)
		}
		if settings, err = f.ParseSettings(string(data)); err != nil {
			return err
		}
		log.Info().Int("specialties", len(settings)).Msg("specialty settings loaded")
	}

	var roster liquidation.Roster = liquidation.NewStaticRoster()
	if cfg.RosterPath != "" {
		data, err := os.ReadFile(cfg.RosterPath)
		if err != nil {
			return fmt.Errorf("failed to read roster file: %w", err)
		}
		if roster, err = f.ParseRoster(string(data)); err != nil {
			return err
		}
		log.Info().Msg("physician roster loaded")
	}

	// Wire engine and handler
	engine := &liquidation.Engine{
		Store:    store,
		Roster:   roster,
		Log:      log,
		Settings: settings,
	}
	handler := api.NewHandler(engine)
	handler.Buffer.Start()

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Port).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	// Final flush so no buffered edit is lost on shutdown.
	handler.Buffer.Stop(ctx)

	log.Info().Msg("server stopped")
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
