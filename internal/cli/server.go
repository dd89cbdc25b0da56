package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quizroom-service/internal/app"
	"quizroom-service/internal/config"
	"quizroom-service/internal/infra/memory"
	pgbank "quizroom-service/internal/infra/postgres"
	infraredis "quizroom-service/internal/infra/redis"
	"quizroom-service/internal/questions"
	transport "quizroom-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log := newLogger(cfg.Log.Level)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	sessionTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	bankTTL := config.TTLDuration(cfg.Quiz.BankTTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	clock := clockwork.NewRealClock()

	// Question provisioning: Postgres bank (redis-cached when available) with
	// the static fallback behind it. A bank failure falls back, never fails a
	// session creation.
	var primary questions.Provider
	if pool != nil {
		var bank questions.Bank = pgbank.NewQuestionBank(pool)
		if redisClient != nil {
			bank = infraredis.NewQuestionCache(redisClient, bank, bankTTL)
		} else {
			bank = memory.NewQuestionCache(bank, bankTTL)
		}
		primary = questions.NewSampler(bank)
	}
	provider := questions.NewWithFallback(primary, questions.NewStaticBank(), log.With().Str("component", "questions").Logger())

	var store app.SessionStore = memory.NewSessionStore(log.With().Str("component", "store").Logger())
	if redisClient != nil {
		store = infraredis.NewSessionStore(store, redisClient, sessionTTL, log.With().Str("component", "store").Logger())
	}

	var notifier app.Notifier
	if redisClient != nil {
		notifier = infraredis.NewNotifier(redisClient, log.With().Str("component", "notifier").Logger())
	} else {
		notifier = memory.NewNotifier()
	}

	svcCfg := app.DefaultServiceConfig()
	if cfg.Quiz.MinQuestions > 0 {
		svcCfg.MinQuestions = cfg.Quiz.MinQuestions
	}
	if cfg.Quiz.MaxQuestions > 0 {
		svcCfg.MaxQuestions = cfg.Quiz.MaxQuestions
	}
	if cfg.Quiz.CodeLength > 0 {
		svcCfg.CodeLength = cfg.Quiz.CodeLength
	}

	service := app.NewService(store, provider, clock, log.With().Str("component", "service").Logger(), svcCfg)
	machine := app.NewMachine(store, clock, log.With().Str("component", "machine").Logger())
	ledger := app.NewLedger(store, clock, log.With().Str("component", "ledger").Logger())
	presence := app.NewPresence(store, notifier, log.With().Str("component", "presence").Logger())
	watcher := app.NewWatcher(machine, store, clock, log.With().Str("component", "watcher").Logger())

	wsHandler := transport.NewWSHandler(service, machine, ledger, presence, watcher, store, notifier, clock, log.With().Str("component", "ws").Logger())

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/sessions", wsHandler.CreateSession)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting quiz session server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(lvl).With().Timestamp().Logger()
}
