package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/rayscout/rayscout/internal/blockchain"
	"github.com/rayscout/rayscout/internal/config"
	"github.com/rayscout/rayscout/internal/events"
	"github.com/rayscout/rayscout/internal/http_api"
	"github.com/rayscout/rayscout/internal/metrics"
	"github.com/rayscout/rayscout/internal/models"
	"github.com/rayscout/rayscout/internal/monitor"
	"github.com/rayscout/rayscout/internal/notificator"
	"github.com/rayscout/rayscout/internal/rayscout"
	"github.com/rayscout/rayscout/internal/repository"
	"github.com/rayscout/rayscout/internal/risk"
	"github.com/rayscout/rayscout/internal/rugcheck"
	"github.com/rayscout/rayscout/internal/sniper"
	"github.com/rayscout/rayscout/pkg/logger"
)

func main() {
	app := &cli.App{
		Name:  "rayscout",
		Usage: "Rayscout watches Solana for new liquidity pools and reports their rug risk on Telegram",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "rpc-endpoint", Aliases: []string{"r"}, Usage: "Solana HTTP RPC endpoint"},
			&cli.StringFlag{Name: "ws-endpoint", Aliases: []string{"w"}, Usage: "Solana websocket endpoint"},
			&cli.StringFlag{Name: "fee-account", Usage: "Account whose logs announce pool creations"},
			&cli.Int64Flag{Name: "max-risk-score", Aliases: []string{"m"}, Usage: "Security gate score ceiling"},
			&cli.BoolFlag{Name: "auto-snipe", Usage: "Build snipe plans for tokens passing the security gate"},
			&cli.DurationFlag{Name: "rugcheck-delay", Usage: "Delay before every risk oracle call"},
			&cli.StringFlag{Name: "store", Aliases: []string{"s"}, Usage: "Store backend (json or postgres)"},
			&cli.StringFlag{Name: "data-dir", Usage: "Directory for tokens.json and error.log"},
			&cli.IntFlag{Name: "port", Aliases: []string{"P"}, Usage: "HTTP API port"},
			&cli.StringFlag{Name: "postgres-user", Aliases: []string{"u"}, Usage: "Postgres user"},
			&cli.StringFlag{Name: "postgres-password", Aliases: []string{"p"}, Usage: "Postgres password"},
			&cli.StringFlag{Name: "postgres-host", Aliases: []string{"t"}, Usage: "Postgres host"},
			&cli.IntFlag{Name: "postgres-port", Usage: "Postgres port"},
			&cli.StringFlag{Name: "postgres-db", Aliases: []string{"d"}, Usage: "Postgres database name"},
			&cli.BoolFlag{Name: "development", Aliases: []string{"D"}, Usage: "Development mode"},
		},
		Action: func(c *cli.Context) error {
			return run(c)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

// applyFlags overrides environment configuration with explicitly set flags
func applyFlags(c *cli.Context, cfg *config.Config) {
	if c.IsSet("rpc-endpoint") {
		cfg.RPCEndpoint = c.String("rpc-endpoint")
	}
	if c.IsSet("ws-endpoint") {
		cfg.RPCWebsocketEndpoint = c.String("ws-endpoint")
	}
	if c.IsSet("fee-account") {
		cfg.FeeAccount = c.String("fee-account")
	}
	if c.IsSet("max-risk-score") {
		cfg.MaxRiskScore = c.Int64("max-risk-score")
	}
	if c.IsSet("auto-snipe") {
		cfg.AutoSnipeEnabled = c.Bool("auto-snipe")
	}
	if c.IsSet("rugcheck-delay") {
		cfg.RugCheckDelay = c.Duration("rugcheck-delay")
	}
	if c.IsSet("store") {
		cfg.StoreBackend = c.String("store")
	}
	if c.IsSet("data-dir") {
		cfg.DataDir = c.String("data-dir")
	}
	if c.IsSet("port") {
		cfg.APIPort = c.Int("port")
	}
	if c.IsSet("postgres-user") {
		cfg.PostgresUser = c.String("postgres-user")
	}
	if c.IsSet("postgres-password") {
		cfg.PostgresPassword = c.String("postgres-password")
	}
	if c.IsSet("postgres-host") {
		cfg.PostgresHost = c.String("postgres-host")
	}
	if c.IsSet("postgres-port") {
		cfg.PostgresPort = c.Int("postgres-port")
	}
	if c.IsSet("postgres-db") {
		cfg.PostgresDB = c.String("postgres-db")
	}
	if c.IsSet("development") {
		cfg.Development = c.Bool("development")
	}
}

func openStore(cfg *config.Config, log *logger.Logger) (models.EventStore, error) {
	if cfg.StoreBackend == config.StoreBackendPostgres {
		return repository.NewPostgresDB(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, log)
	}
	return repository.NewJSONFileStore(cfg.TokensFile(), log)
}

func run(c *cli.Context) error {
	// Load configuration from environment variables
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %v", err)
	}
	applyFlags(c, cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %v", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting Rayscout", "config", cfg.Summary())

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scoutMetrics := metrics.NewScoutMetrics()
	if err := scoutMetrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	errorLog := repository.NewErrorLog(cfg.ErrorLogFile(), log)

	store, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close store", "error", err)
		}
	}()

	// Initialize blockchain service
	solana := blockchain.NewSolana(log, cfg)
	if err := solana.Run(ctx); err != nil {
		return err
	}
	defer solana.Close()

	bus := events.NewBus()
	parser := blockchain.NewParser(solana, cfg.PoolOwner, cfg.ReferenceMint, log)

	tokenMonitor, err := monitor.NewMonitor(log, solana, parser, store, bus, errorLog, scoutMetrics, cfg.FeeAccount)
	if err != nil {
		return err
	}

	oracle := rugcheck.NewClient(log, errorLog,
		rugcheck.WithBaseURL(cfg.RugCheckURL),
		rugcheck.WithDelay(cfg.RugCheckDelay),
		rugcheck.WithTimeout(cfg.RugCheckTimeout),
		rugcheck.WithMetrics(scoutMetrics),
	)

	scout := rayscout.NewRayscout(
		tokenMonitor,
		store,
		oracle,
		risk.NewClassifier(cfg.MaxRiskScore),
		sniper.NewPlanner(),
		bus,
		errorLog,
		scoutMetrics,
		log,
		cfg,
	)

	chats := notificator.NewChatRegistry()
	telegram, err := notificator.NewTelegramNotificator(log, cfg, scout, chats)
	if err != nil {
		return err
	}
	notifier := notificator.NewNotificator(log, telegram, chats, cfg.AdminChatID, scoutMetrics)
	unsubscribe := notifier.Subscribe(bus)
	defer unsubscribe()

	apiServer := http_api.NewHTTPServer(scout, cfg.APIPort, prometheus.DefaultGatherer, cfg.Development, log)

	// A monitor that cannot subscribe is fatal; a supervisor restarts the process.
	if err := scout.Start(ctx); err != nil {
		errorLog.Record("Starting bot", err)
		return err
	}
	log.Info("Bot is ready and monitoring for new tokens")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(apiServer.Start)
	g.Go(func() error {
		telegram.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return notifier.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down bot...")
		scout.Close()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return apiServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
