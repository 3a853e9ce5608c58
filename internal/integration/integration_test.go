package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/app"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/battle"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/postgres"
	pgmigrations "github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/postgres/migrations"
	infraredis "github.com/GRACE-wDEV/Stemforces-sub001/internal/infra/redis"
	transport "github.com/GRACE-wDEV/Stemforces-sub001/internal/transport/http"
)

func TestBattleEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var fallbacks []battle.FallbackReason
	supply := battle.NewSupply(
		infraredis.NewRoundRepository(redisClient, postgres.NewRoundLoader(pool), "it", 5*time.Minute),
		battle.FallbackRounds(),
		battle.WithSupplyLogger(logger),
		battle.WithFallbackHook(func(r battle.FallbackReason) { fallbacks = append(fallbacks, r) }),
	)
	results := postgres.NewResultStore(pool)
	board := infraredis.NewLeaderboard(redisClient, "it")

	service := app.NewBattleService(app.Config{
		Battles:      infraredis.NewBattleStore(redisClient, "it", 5*time.Minute),
		Supply:       supply,
		Sinks:        []app.ResultSink{results, board},
		Logger:       logger,
		Defaults:     app.Defaults{PerRoundSeconds: 5},
		Seed:         7,
		TickInterval: 20 * time.Millisecond,
	})

	snap, err := service.Start(ctx, app.StartRequest{
		UserID:      "u1",
		DisplayName: "Alice",
		Subject:     "Physics",
		RoundCount:  3,
		BotProfiles: []domain.SkillProfile{{Accuracy: 0, SpeedRatio: domain.SpeedRange{Min: 0.5, Max: 0.5}}},
	})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(fallbacks) != 0 {
		t.Fatalf("expected questions from postgres, fell back: %v", fallbacks)
	}
	if snap.TotalRounds != 3 {
		t.Fatalf("expected 3 rounds, got %d", snap.TotalRounds)
	}

	updates, cancel, err := service.Subscribe(ctx, snap.BattleID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	answered := map[int]bool{}
	deadline := time.After(10 * time.Second)
	for done := false; !done; {
		select {
		case s := <-updates:
			if s.Stage == domain.StageInRound && !answered[s.CurrentRoundIndex] && s.Round != nil {
				answered[s.CurrentRoundIndex] = true
				_, _ = service.SubmitAnswer(ctx, snap.BattleID, correctIndex(t, ctx, pool, s.Round.ID))
			}
			done = s.Stage == domain.StageSessionComplete
		case <-deadline:
			t.Fatalf("battle did not complete")
		}
	}

	res, err := service.Result(ctx, snap.BattleID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if winner, _ := res.Winner(); winner.ParticipantID != "u1" {
		t.Fatalf("expected u1 to win against a bot that never answers right, got %+v", res.Rankings)
	}

	// sinks run after the final snapshot
	var stored []domain.Result
	for i := 0; i < 50; i++ {
		stored, err = results.RecentResults(ctx, "u1", 5)
		if err != nil {
			t.Fatalf("recent results: %v", err)
		}
		if len(stored) > 0 {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}
	if len(stored) != 1 || stored[0].BattleID != snap.BattleID || len(stored[0].AnswerHistory) != 3 {
		t.Fatalf("expected archived battle %s, got %+v", snap.BattleID, stored)
	}
	if stored[0].LiveSummary.TotalPoints != res.LiveSummary.TotalPoints {
		t.Fatalf("archived points %d, want %d", stored[0].LiveSummary.TotalPoints, res.LiveSummary.TotalPoints)
	}

	top, err := board.Top(ctx, "physics", 3)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(top) != 1 || top[0].UserID != "u1" || top[0].Points != res.LiveSummary.TotalPoints {
		t.Fatalf("unexpected leaderboard %+v", top)
	}

	stats := transport.NewStatsHandler(board, results, logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/leaderboard", stats.ServeLeaderboard)
	mux.HandleFunc("/results", stats.ServeResults)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var history struct {
		Results []domain.Result `json:"results"`
	}
	getJSON(t, srv.URL+"/results?userId=u1&limit=5", &history)
	if len(history.Results) != 1 || history.Results[0].BattleID != snap.BattleID {
		t.Fatalf("expected archived battle over http, got %+v", history.Results)
	}
	var standings struct {
		Entries []domain.LeaderboardEntry `json:"entries"`
	}
	getJSON(t, srv.URL+"/leaderboard?subject=physics", &standings)
	if len(standings.Entries) != 1 || standings.Entries[0].Points != res.LiveSummary.TotalPoints {
		t.Fatalf("unexpected leaderboard over http %+v", standings.Entries)
	}

	service.Leave(ctx, snap.BattleID)
	if n, err := redisClient.Exists(ctx, "it:battle:"+snap.BattleID).Result(); err != nil || n != 0 {
		t.Fatalf("expected battle key removed, exists=%d err=%v", n, err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "battle", "POSTGRES_PASSWORD": "battlepass", "POSTGRES_DB": "battledb"},
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
	dsn := fmt.Sprintf("postgres://battle:battlepass@%s:%s/battledb?sslmode=disable", host, port.Port())
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

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) {
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

	// the migration seeds three physics questions; add one more so sampling has a choice
	if _, err := db.ExecContext(ctx, `INSERT INTO questions (id, subject, difficulty, prompt, options, correct_option_index)
		VALUES (?, 'physics', 'easy', 'What is the speed of light in vacuum, roughly?', ?::jsonb, 0)
		ON CONFLICT (id) DO NOTHING`, "it-physics-1", `["3e8 m/s", "3e6 m/s", "340 m/s"]`); err != nil {
		t.Fatalf("insert question: %v", err)
	}
}

func correctIndex(t *testing.T, ctx context.Context, pool *pgxpool.Pool, roundID string) int {
	t.Helper()
	var idx int
	if err := pool.QueryRow(ctx, `SELECT correct_option_index FROM questions WHERE id=$1`, roundID).Scan(&idx); err != nil {
		t.Fatalf("correct index of %s: %v", roundID, err)
	}
	return idx
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

func getJSON(t *testing.T, url string, into any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}
