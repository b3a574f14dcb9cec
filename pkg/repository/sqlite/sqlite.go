package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	_ "modernc.org/sqlite"

	"github.com/anishgillella/Voice-Receptionist/pkg/domain/interfaces"
	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite is a single-file relational repository. Vectors are stored as JSON
// and scored in process.
type SQLite struct {
	db        *sql.DB
	dimension int

	customer     *customerRepository
	conversation *conversationRepository
	analysis     *analysisRepository
	dispatch     *dispatchRepository
	memory       *memoryRepository
	embedding    *embeddingRepository
}

var _ interfaces.Repository = &SQLite{}

type Option func(*SQLite)

// WithDimension makes the embedding store reject vectors of any other length
func WithDimension(dim int) Option {
	return func(s *SQLite) {
		s.dimension = dim
	}
}

// New opens (or creates) the database at path and applies pending migrations
func New(ctx context.Context, path string, opts ...Option) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open sqlite database", goerr.V("path", path))
	}

	// One connection serializes writers inside database/sql instead of
	// surfacing SQLITE_BUSY to callers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, goerr.Wrap(err, "failed to set pragma", goerr.V("pragma", pragma))
		}
	}

	s := &SQLite{db: db}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.customer = &customerRepository{db: db}
	s.conversation = &conversationRepository{db: db}
	s.analysis = &analysisRepository{db: db}
	s.dispatch = &dispatchRepository{db: db}
	s.memory = &memoryRepository{db: db}
	s.embedding = &embeddingRepository{db: db, dimension: s.dimension}

	return s, nil
}

func (s *SQLite) Customer() interfaces.CustomerRepository {
	return s.customer
}

func (s *SQLite) Conversation() interfaces.ConversationRepository {
	return s.conversation
}

func (s *SQLite) Analysis() interfaces.AnalysisRepository {
	return s.analysis
}

func (s *SQLite) Dispatch() interfaces.DispatchRepository {
	return s.dispatch
}

func (s *SQLite) Memory() interfaces.MemoryRepository {
	return s.memory
}

func (s *SQLite) Embedding() interfaces.EmbeddingRepository {
	return s.embedding
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

type migration struct {
	version int
	name    string
}

func (s *SQLite) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL
		)`); err != nil {
		return goerr.Wrap(err, "failed to create schema_migrations table")
	}

	var current int
	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return goerr.Wrap(err, "failed to read schema version")
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return goerr.Wrap(err, "failed to read migrations")
	}

	seen := make(map[int]string)
	var pending []migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		parts := strings.SplitN(entry.Name(), "_", 2)
		if len(parts) < 2 {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(parts[0], "%d", &version); err != nil {
			continue
		}
		if prev, ok := seen[version]; ok {
			return goerr.New("duplicate migration version",
				goerr.V("version", version),
				goerr.V("first", prev),
				goerr.V("second", entry.Name()))
		}
		seen[version] = entry.Name()
		if version > current {
			pending = append(pending, migration{version: version, name: entry.Name()})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })

	for _, m := range pending {
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		logging.From(ctx).Debug("applied migration", "version", m.version, "name", m.name)
	}
	return nil
}

func (s *SQLite) apply(ctx context.Context, m migration) error {
	body, err := migrationsFS.ReadFile("migrations/" + m.name)
	if err != nil {
		return goerr.Wrap(err, "failed to read migration", goerr.V("name", m.name))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return goerr.Wrap(err, "failed to begin migration", goerr.V("name", m.name))
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return goerr.Wrap(err, "failed to apply migration", goerr.V("name", m.name))
	}
	desc := strings.TrimSuffix(strings.SplitN(m.name, "_", 2)[1], ".sql")
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, description, applied_at) VALUES (?, ?, ?)",
		m.version, desc, time.Now().UTC().UnixNano()); err != nil {
		return goerr.Wrap(err, "failed to record migration", goerr.V("name", m.name))
	}

	if err := tx.Commit(); err != nil {
		return goerr.Wrap(err, "failed to commit migration", goerr.V("name", m.name))
	}
	return nil
}

func toUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UTC().UnixNano()
}

func fromUnix(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
