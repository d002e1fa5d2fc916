package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/denisenkom/go-mssqldb" // for sqlserver
	_ "github.com/go-sql-driver/mysql"   // for mysql
	"github.com/goccy/go-json"
	_ "github.com/lib/pq" // for postgres

	"pact-verifier/internal/types"
)

// Config holds database connection configuration
type Config struct {
	Driver   string
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
}

// DSN builds the connection string for the configured driver.
func DSN(cfg Config) (string, error) {
	switch cfg.Driver {
	case "postgres":
		sslmode := cfg.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, sslmode), nil
	case "mysql":
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database), nil
	case "sqlserver":
		return fmt.Sprintf("server=%s;port=%d;user id=%s;password=%s;database=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database), nil
	default:
		return "", fmt.Errorf("unsupported database type: %s", cfg.Driver)
	}
}

// Store records verification runs so results can be tracked over time.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects to the configured database and checks the connection.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return New(db, cfg.Driver), nil
}

// New wraps an open database handle.
func New(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the database handle
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the history tables when they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to migrate history schema: %w", err)
		}
	}
	return nil
}

func (s *Store) schema() []string {
	text, boolean, ts := "TEXT", "BOOLEAN", "TIMESTAMP"
	if s.driver == "sqlserver" {
		text, boolean, ts = "NVARCHAR(MAX)", "BIT", "DATETIME2"
	}
	runs := fmt.Sprintf(`CREATE TABLE pact_verifier_runs (
	run_id VARCHAR(64) PRIMARY KEY,
	consumer VARCHAR(255),
	provider VARCHAR(255),
	success %s NOT NULL,
	interactions INTEGER NOT NULL,
	failed_interactions INTEGER NOT NULL,
	errors INTEGER NOT NULL,
	warnings INTEGER NOT NULL,
	duration_ms INTEGER NOT NULL,
	started_at %s NOT NULL
)`, boolean, ts)
	violations := fmt.Sprintf(`CREATE TABLE pact_verifier_violations (
	run_id VARCHAR(64) NOT NULL,
	position INTEGER NOT NULL,
	interaction_index INTEGER NOT NULL,
	code VARCHAR(64) NOT NULL,
	severity VARCHAR(16) NOT NULL,
	kind VARCHAR(16) NOT NULL,
	message %[1]s NOT NULL,
	interaction_location %[1]s,
	spec_location %[1]s,
	offending_value %[1]s,
	violated_constraint %[1]s,
	PRIMARY KEY (run_id, position)
)`, text)

	if s.driver == "sqlserver" {
		return []string{
			"IF OBJECT_ID('pact_verifier_runs', 'U') IS NULL " + runs,
			"IF OBJECT_ID('pact_verifier_violations', 'U') IS NULL " + violations,
		}
	}
	return []string{
		strings.Replace(runs, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1),
		strings.Replace(violations, "CREATE TABLE", "CREATE TABLE IF NOT EXISTS", 1),
	}
}

// SaveRun stores a run and its violations in one transaction.
func (s *Store) SaveRun(ctx context.Context, result *types.VerificationResult, startedAt time.Time, duration time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sum := result.Summary
	_, err = tx.ExecContext(ctx, s.insert("pact_verifier_runs",
		"run_id", "consumer", "provider", "success", "interactions", "failed_interactions",
		"errors", "warnings", "duration_ms", "started_at"),
		result.RunID, result.Consumer, result.Provider, result.Success, sum.Interactions,
		sum.FailedInteractions, sum.Errors, sum.Warnings, duration.Milliseconds(), startedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	query := s.insert("pact_verifier_violations",
		"run_id", "position", "interaction_index", "code", "severity", "kind", "message",
		"interaction_location", "spec_location", "offending_value", "violated_constraint")
	for i, v := range result.Violations {
		value, err := encodeValue(v.Value)
		if err != nil {
			return fmt.Errorf("failed to encode value of violation %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, query,
			result.RunID, i, v.InteractionIndex, string(v.Code), string(v.Severity), v.Kind, v.Message,
			v.InteractionLocation, v.SpecLocation, value, v.Constraint)
		if err != nil {
			return fmt.Errorf("failed to save violation %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}
	return nil
}

// insert builds an INSERT statement with the driver's placeholder style.
func (s *Store) insert(table string, columns ...string) string {
	placeholders := make([]string, len(columns))
	for i := range columns {
		placeholders[i] = s.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(placeholders, ", "))
}

func (s *Store) placeholder(n int) string {
	switch s.driver {
	case "postgres":
		return fmt.Sprintf("$%d", n)
	case "sqlserver":
		return fmt.Sprintf("@p%d", n)
	default:
		return "?"
	}
}

func encodeValue(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
