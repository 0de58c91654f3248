package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

var testDSN string

func mustStartPostgresContainer() (func(context.Context, ...testcontainers.TerminateOption) error, error) {
	var (
		dbName = "croupier_test"
		dbPwd  = "password"
		dbUser = "user"
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dbContainer, err := postgres.Run(
		ctx,
		"postgres:latest",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, err
	}

	dbHost, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, err
	}
	dbPort, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, err
	}

	testDSN = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		dbUser, dbPwd, dbHost, dbPort.Port(), dbName)
	return dbContainer.Terminate, nil
}

func TestMain(m *testing.M) {
	if os.Getenv("SKIP_INTEGRATION") != "" {
		os.Exit(0)
	}
	if os.Getenv("CI") == "" && !isDockerAvailable() {
		os.Exit(0)
	}

	teardown, err := mustStartPostgresContainer()
	if err != nil {
		os.Exit(0)
	}

	code := m.Run()

	if teardown != nil {
		teardown(context.Background())
	}
	os.Exit(code)
}

func isDockerAvailable() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	provider, err := testcontainers.NewDockerProvider()
	if err != nil {
		return false
	}
	defer provider.Close()

	_, err = provider.DaemonHost(ctx)
	return err == nil
}

func migratedService(t *testing.T) Service {
	t.Helper()

	db, err := sql.Open("pgx", testDSN)
	if err != nil {
		t.Fatalf("sql.Open() error = %v", err)
	}
	if err := RunMigrations(db, "../../migrations"); err != nil {
		db.Close()
		t.Fatalf("RunMigrations() error = %v", err)
	}
	db.Close()

	srv, err := New(testDSN, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestHealth(t *testing.T) {
	srv := migratedService(t)

	stats := srv.Health()
	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s", stats["status"])
	}
	if _, ok := stats["error"]; ok {
		t.Fatal("expected error not to be present")
	}
}

func TestSaveAndRecentRounds(t *testing.T) {
	srv := migratedService(t)
	ctx := context.Background()

	rec := RoundRecord{
		RoundID:    "R-test-1",
		Mode:       "roulette",
		Pocket:     17,
		ServerSeed: "seed-1",
		Commitment: "commit-1",
		Nonce:      1,
		SettledAt:  time.Now().UTC(),
		Bets: []BetRecord{
			{BetID: "B-1", UserID: "u1", BetType: "single_number", Value: "17", Amount: 100, Payout: 3500, Won: true},
			{BetID: "B-2", UserID: "u2", BetType: "red_black", Value: "red", Amount: 50, Payout: 0, Won: false},
		},
	}
	if err := srv.SaveRound(ctx, rec); err != nil {
		t.Fatalf("SaveRound() error = %v", err)
	}

	// A replayed archive for the same round must not fail or duplicate.
	if err := srv.SaveRound(ctx, rec); err != nil {
		t.Fatalf("SaveRound() replay error = %v", err)
	}

	rounds, err := srv.RecentRounds(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRounds() error = %v", err)
	}

	var found int
	for _, r := range rounds {
		if r.RoundID == "R-test-1" {
			found++
			if r.Pocket != 17 || r.Mode != "roulette" {
				t.Errorf("round = %+v, want pocket 17 roulette", r)
			}
		}
	}
	if found != 1 {
		t.Fatalf("found %d copies of the round, want 1", found)
	}
}

func TestClose(t *testing.T) {
	srv, err := New(testDSN, zap.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if srv.Close() != nil {
		t.Fatal("expected Close() to return nil")
	}
}
