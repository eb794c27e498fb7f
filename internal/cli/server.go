package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"geeko-live/internal/app"
	"geeko-live/internal/config"
	"geeko-live/internal/domain"
	"geeko-live/internal/infra/memory"
	"geeko-live/internal/infra/postgres"
	redisinfra "geeko-live/internal/infra/redis"
	transport "geeko-live/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the session server",
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

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizRepo app.QuizRepository
	if pool != nil && redisClient != nil {
		quizRepo = redisinfra.NewQuizRepository(redisClient, postgres.NewQuizLoader(pool), quizTTL)
	} else if pool != nil {
		quizRepo = memory.NewQuizRepository(postgres.NewQuizLoader(pool), quizTTL)
	} else {
		quizRepo = memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuizzes()), quizTTL)
	}

	var store app.GameStore
	if pool != nil {
		store = postgres.NewGameStore(pool)
	} else {
		store = memory.NewGameStore()
	}

	var opts []app.Option
	if redisClient != nil {
		mirrorTTL := config.TTLDuration(cfg.Redis.LeaderboardTTL, redisTTL)
		opts = append(opts, app.WithLeaderboardMirror(redisinfra.NewLeaderboardMirror(redisClient, mirrorTTL)))
	}
	service := app.NewGameService(store, quizRepo, opts...)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	transport.NewAPIHandler(service).Register(mux)
	mux.HandleFunc("/ws", transport.NewWSHandler(service).ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting geeko-live on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleQuizzes seeds a playable quiz for running without Postgres.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:               "quiz-1",
			Title:            "Warm-up",
			Status:           domain.QuizReady,
			TimeLimitSeconds: 20,
			Questions: []domain.Question{
				{
					ID:      "q1",
					Text:    "What is 2 + 2?",
					Type:    domain.MultipleChoice,
					Options: []string{"3", "4", "5"},
					Correct: []string{"4"},
				},
				{
					ID:      "q2",
					Text:    "Go ships a race detector.",
					Type:    domain.TrueFalse,
					Correct: []string{"True"},
				},
			},
		},
	}
}
