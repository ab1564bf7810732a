package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quizarena/internal/app"
	"quizarena/internal/domain"
	"quizarena/internal/infra/memory"
	pginfra "quizarena/internal/infra/postgres"
	pgmigrations "quizarena/internal/infra/postgres/migrations"
	redisinfra "quizarena/internal/infra/redis"
	"quizarena/internal/judge"
	"quizarena/internal/questions"
)

func TestQuizEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedDatabase(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	logger := zerolog.Nop()
	cached := redisinfra.NewCachedPool(redisClient, pginfra.NewQuestionPool(pool), 5*time.Minute, logger)
	source := questions.NewSource(cached, nil, logger)
	tracker := redisinfra.NewProgressTracker(redisClient)

	store := memory.NewStore()
	catalog, err := pginfra.NewChallengeSource(pool).All(ctx)
	if err != nil {
		t.Fatalf("load challenges: %v", err)
	}
	if len(catalog) != 1 || catalog[0].ID != "ch-sum" {
		t.Fatalf("expected the seeded challenge, got %+v", catalog)
	}
	if len(catalog[0].TestCases) != 2 {
		t.Fatalf("expected test cases to survive the JSONB round-trip, got %+v", catalog[0])
	}
	store.SeedChallenges(catalog)

	hub := app.NewHub(store, judge.NewSimulator(), source, tracker, logger, app.Options{
		Tick:        20 * time.Millisecond,
		ReviewDelay: 15 * time.Millisecond,
		GraceDelay:  15 * time.Millisecond,
	})

	room, err := hub.CreateRoom(ctx, "alice", "general", domain.DifficultyEasy, 2, 4)
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	alice := app.NewConn("alice")
	if err := hub.JoinRoom(ctx, room.Code, alice); err != nil {
		t.Fatalf("join alice: %v", err)
	}
	bob := app.NewConn("bob")
	if err := hub.JoinRoom(ctx, room.Code, bob); err != nil {
		t.Fatalf("join bob: %v", err)
	}

	hub.Dispatch(ctx, bob, app.ToggleReady{})
	hub.Dispatch(ctx, alice, app.StartGame{})
	awaitEvent[app.GameStarted](t, alice)

	for round := 0; round < 2; round++ {
		q := awaitEvent[app.NewQuestion](t, alice)
		awaitEvent[app.NewQuestion](t, bob)
		hub.Dispatch(ctx, alice, app.SubmitAnswer{QuestionIndex: q.QuestionIndex, Answer: "b"})
		hub.Dispatch(ctx, bob, app.SubmitAnswer{QuestionIndex: q.QuestionIndex, Answer: "a"})
		awaitEvent[app.RoundResult](t, alice)
		awaitEvent[app.RoundResult](t, bob)
	}
	finished := awaitEvent[app.QuizFinished](t, alice)
	if len(finished.FinalLeaderboard) != 2 || finished.FinalLeaderboard[0].User != "alice" {
		t.Fatalf("expected alice leading, got %+v", finished.FinalLeaderboard)
	}

	// The question batch went through the Redis cache on the way in.
	n, err := redisClient.Exists(ctx, "quiz:questions:general:easy").Result()
	if err != nil || n != 1 {
		t.Fatalf("expected cached question batch, exists=%d err=%v", n, err)
	}

	// Progress lands in Redis once the match wraps up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		matches, _, best, _, err := tracker.Stats(ctx, "alice")
		if err != nil {
			t.Fatalf("stats: %v", err)
		}
		if matches == 1 {
			if best <= 0 {
				t.Fatalf("expected a positive best score, got %d", best)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("progress never recorded, matches=%d", matches)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// awaitEvent drains the connection until an event of type T shows up.
func awaitEvent[T app.Event](t *testing.T, conn *app.Conn) T {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-conn.Events():
			if typed, ok := ev.(T); ok {
				return typed
			}
		case <-deadline:
			var zero T
			t.Fatalf("timed out waiting for %s", zero.EventType())
			return zero
		}
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedDatabase(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	for i, correct := range []string{"b", "b"} {
		q := map[string]any{
			"id":     fmt.Sprintf("q%d", i+1),
			"prompt": "pick b",
			"options": []map[string]string{
				{"id": "a", "text": "wrong"},
				{"id": "b", "text": "right"},
			},
			"correctAnswer": correct,
		}
		data, err := json.Marshal(q)
		if err != nil {
			t.Fatalf("marshal question: %v", err)
		}
		_, err = db.ExecContext(ctx,
			`INSERT INTO questions (id, topic, difficulty, data) VALUES (?, ?, ?, ?::jsonb)`,
			q["id"], "general", "easy", string(data))
		if err != nil {
			t.Fatalf("insert question: %v", err)
		}
	}

	challenge := map[string]any{
		"id":               "ch-sum",
		"title":            "Sum Two Numbers",
		"description":      "Read two integers and print their sum.",
		"problemStatement": "Given two integers a and b, print a+b.",
		"difficulty":       "easy",
		"timeLimit":        300,
		"testCases": []map[string]string{
			{"input": "1 2", "output": "3"},
			{"input": "10 5", "output": "15"},
		},
	}
	data, err := json.Marshal(challenge)
	if err != nil {
		t.Fatalf("marshal challenge: %v", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO challenges (id, difficulty, data) VALUES (?, ?, ?::jsonb)`,
		challenge["id"], "easy", string(data))
	if err != nil {
		t.Fatalf("insert challenge: %v", err)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
