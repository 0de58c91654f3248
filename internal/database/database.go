package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

// RoundRecord archives one settled round.
type RoundRecord struct {
	RoundID    string      `json:"round_id"`
	Mode       string      `json:"mode"`
	Pocket     int         `json:"pocket"`
	CrashX100  int64       `json:"crash_x100"`
	ServerSeed string      `json:"server_seed"`
	Commitment string      `json:"commitment"`
	Nonce      int         `json:"nonce"`
	SettledAt  time.Time   `json:"settled_at"`
	Bets       []BetRecord `json:"bets,omitempty"`
}

// BetRecord archives one settled bet.
type BetRecord struct {
	BetID   string `json:"bet_id"`
	UserID  string `json:"user_id"`
	BetType string `json:"bet_type"`
	Value   string `json:"value"`
	Amount  int64  `json:"amount"`
	Payout  int64  `json:"payout"`
	Won     bool   `json:"won"`
}

// Service persists round history.
type Service interface {
	SaveRound(ctx context.Context, rec RoundRecord) error
	RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error)
	Health() map[string]string
	Close() error
}

type service struct {
	db  *sql.DB
	log *zap.Logger
}

// New opens the history database over the pgx stdlib driver.
func New(dsn string, log *zap.Logger) (Service, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log.Info("postgres connected")
	return &service{db: db, log: log}, nil
}

func (s *service) SaveRound(ctx context.Context, rec RoundRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (round_id, mode, pocket, crash_x100, server_seed, commitment, nonce, settled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (round_id) DO NOTHING`,
		rec.RoundID, rec.Mode, rec.Pocket, rec.CrashX100,
		rec.ServerSeed, rec.Commitment, rec.Nonce, rec.SettledAt)
	if err != nil {
		return fmt.Errorf("insert round: %w", err)
	}

	for _, b := range rec.Bets {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO round_bets (bet_id, round_id, user_id, bet_type, value, amount, payout, won)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (bet_id) DO NOTHING`,
			b.BetID, rec.RoundID, b.UserID, b.BetType, b.Value, b.Amount, b.Payout, b.Won)
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
	}
	return tx.Commit()
}

func (s *service) RecentRounds(ctx context.Context, limit int) ([]RoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT round_id, mode, pocket, crash_x100, server_seed, commitment, nonce, settled_at
		FROM rounds ORDER BY settled_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query rounds: %w", err)
	}
	defer rows.Close()

	var out []RoundRecord
	for rows.Next() {
		var rec RoundRecord
		if err := rows.Scan(&rec.RoundID, &rec.Mode, &rec.Pocket, &rec.CrashX100,
			&rec.ServerSeed, &rec.Commitment, &rec.Nonce, &rec.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}
	stats["status"] = "up"
	dbStats := s.db.Stats()
	stats["open_connections"] = fmt.Sprint(dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprint(dbStats.InUse)
	stats["idle"] = fmt.Sprint(dbStats.Idle)
	return stats
}

func (s *service) Close() error {
	s.log.Info("disconnecting from postgres")
	return s.db.Close()
}

// RunMigrations applies all pending migrations from the given directory.
func RunMigrations(db *sql.DB, migrationsPath string) error {
	m, err := migrator(db, migrationsPath)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

// RollbackMigration rolls back the most recent migration.
func RollbackMigration(db *sql.DB, migrationsPath string) error {
	m, err := migrator(db, migrationsPath)
	if err != nil {
		return err
	}
	return m.Steps(-1)
}

// GetMigrationVersion reports the current schema version.
func GetMigrationVersion(db *sql.DB, migrationsPath string) (uint, bool, error) {
	m, err := migrator(db, migrationsPath)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}

func migrator(db *sql.DB, migrationsPath string) (*migrate.Migrate, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	return migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
}
