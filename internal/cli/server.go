package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"quizarena/internal/app"
	"quizarena/internal/config"
	"quizarena/internal/domain"
	"quizarena/internal/infra/memory"
	"quizarena/internal/infra/postgres"
	redisinfra "quizarena/internal/infra/redis"
	"quizarena/internal/judge"
	"quizarena/internal/questions"
	transport "quizarena/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quiz arena server",
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
	logger := newLogger(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
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

	var redisClient *goredis.Client
	if cfg.Redis.Addr != "" {
		redisClient = goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pgPool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pgPool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pgPool.Close()
	}

	store := memory.NewStore()
	if err := seedChallenges(ctx, store, pgPool, logger); err != nil {
		return err
	}

	var pool questions.Pool
	if pgPool != nil {
		pool = postgres.NewQuestionPool(pgPool)
	} else {
		pool = sampleQuestionPool()
	}
	if redisClient != nil {
		ttl := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)
		pool = redisinfra.NewCachedPool(redisClient, pool, ttl, logger)
	}

	var generator questions.Generator
	if cfg.Generator.URL != "" {
		generator = questions.NewHTTPGenerator(questions.GeneratorConfig{
			BaseURL: cfg.Generator.URL,
			APIKey:  cfg.Generator.APIKey,
			Timeout: config.TTLDuration(cfg.Generator.Timeout, 30*time.Second),
		})
	}
	source := questions.NewSource(pool, generator, logger)

	var judgeClient app.JudgeClient = judge.NewSimulator()
	if cfg.Judge.URL != "" {
		judgeClient = judge.New(judge.Config{
			BaseURL: cfg.Judge.URL,
			APIKey:  cfg.Judge.APIKey,
			APIHost: cfg.Judge.APIHost,
			Timeout: config.TTLDuration(cfg.Judge.Timeout, 10*time.Second),
		}, nil, logger)
	}

	var progress app.ProgressTracker = memory.NewProgressTracker()
	if redisClient != nil {
		progress = redisinfra.NewProgressTracker(redisClient)
	}

	hub := app.NewHub(store, judgeClient, source, progress, logger, app.Options{})
	mux := transport.NewRouter(hub, logger)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		logger.Info().Str("port", finalPort).Msg("starting quiz arena server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		logger.Info().Msg("shutting down server")
	case <-ctx.Done():
		logger.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	var logger zerolog.Logger
	if cfg.Log.Pretty {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// seedChallenges fills the in-memory catalog from Postgres when configured,
// otherwise from the built-in sample set.
func seedChallenges(ctx context.Context, store *memory.Store, pgPool *pgxpool.Pool, logger zerolog.Logger) error {
	if pgPool != nil {
		catalog, err := postgres.NewChallengeSource(pgPool).All(ctx)
		if err != nil {
			return err
		}
		store.SeedChallenges(catalog)
		logger.Info().Int("challenges", len(catalog)).Msg("challenge catalog loaded")
		return nil
	}
	store.SeedChallenges(sampleChallenges())
	return nil
}

func sampleQuestionPool() *memory.QuestionPool {
	pool := memory.NewQuestionPool()
	pool.Seed("general", domain.DifficultyEasy, []domain.Question{
		{
			ID:     "q-easy-1",
			Prompt: "What is 2 + 2?",
			Options: []domain.Option{
				{ID: "a", Text: "3"},
				{ID: "b", Text: "4"},
				{ID: "c", Text: "5"},
			},
			CorrectAnswer: "b",
		},
		{
			ID:     "q-easy-2",
			Prompt: "Which planet is known as the Red Planet?",
			Options: []domain.Option{
				{ID: "a", Text: "Venus"},
				{ID: "b", Text: "Jupiter"},
				{ID: "c", Text: "Mars"},
			},
			CorrectAnswer: "c",
		},
	})
	return pool
}

// sampleChallenges keeps battles playable with no database attached.
func sampleChallenges() []domain.Challenge {
	return []domain.Challenge{
		{
			ID:               "ch-sum",
			Title:            "Sum of Two Numbers",
			Description:      "Read two integers and print their sum.",
			ProblemStatement: "Given two integers a and b on one line, print a+b.",
			SampleIO:         "Input: 1 2\nOutput: 3",
			Difficulty:       domain.DifficultyEasy,
			TimeLimit:        300,
			TestCases: []domain.TestCase{
				{Input: "1 2", Output: "3"},
				{Input: "10 -4", Output: "6"},
			},
		},
		{
			ID:               "ch-reverse",
			Title:            "Reverse a String",
			Description:      "Print the input string reversed.",
			ProblemStatement: "Read one line and print its characters in reverse order.",
			SampleIO:         "Input: abc\nOutput: cba",
			Difficulty:       domain.DifficultyEasy,
			TimeLimit:        300,
			TestCases: []domain.TestCase{
				{Input: "abc", Output: "cba"},
				{Input: "racecar", Output: "racecar"},
			},
		},
		{
			ID:               "ch-fizzbuzz",
			Title:            "FizzBuzz Count",
			Description:      "Count FizzBuzz numbers up to n.",
			ProblemStatement: "Read n and print how many numbers in [1, n] are divisible by both 3 and 5.",
			SampleIO:         "Input: 30\nOutput: 2",
			Difficulty:       domain.DifficultyMedium,
			TimeLimit:        300,
			TestCases: []domain.TestCase{
				{Input: "30", Output: "2"},
				{Input: "14", Output: "0"},
			},
		},
	}
}
