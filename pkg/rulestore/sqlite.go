package rulestore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/psaab/slotstrike/pkg/config"
	"github.com/psaab/slotstrike/pkg/rules"
)

const schema = `CREATE TABLE IF NOT EXISTS snipe_rules (
	kind             TEXT NOT NULL,
	address          TEXT NOT NULL,
	snipe_height_sol TEXT NOT NULL,
	tip_budget_sol   TEXT NOT NULL,
	slippage_pct     TEXT NOT NULL
)`

const selectRules = `SELECT address, snipe_height_sol, tip_budget_sol, slippage_pct FROM snipe_rules WHERE kind = ? ORDER BY rowid`

const insertRule = `INSERT INTO snipe_rules (kind, address, snipe_height_sol, tip_budget_sol, slippage_pct) VALUES (?, ?, ?, ?, ?)`

// SQLite reads rules from the snipe_rules table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open rule database: %w", err)
	}
	s := NewSQLite(db)
	if err := s.EnsureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewSQLite wraps an existing handle.
func NewSQLite(db *sql.DB) *SQLite { return &SQLite{db: db} }

func (s *SQLite) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create snipe_rules: %w", err)
	}
	return nil
}

// Insert appends an entry without validating it; validation happens on
// load, the same as for file-backed rules.
func (s *SQLite) Insert(ctx context.Context, e config.RuleEntry) error {
	_, err := s.db.ExecContext(ctx, insertRule, e.Kind, e.Address, e.SnipeHeightSOL, e.TipBudgetSOL, e.SlippagePct)
	if err != nil {
		return fmt.Errorf("insert rule %s: %w", e.Address, err)
	}
	return nil
}

func (s *SQLite) LoadRules(ctx context.Context, kind rules.Kind, initial bool) ([]rules.SnipeRule, error) {
	k, err := entryKind(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, selectRules, k)
	if err != nil {
		return nil, fmt.Errorf("query %s rules: %w", kind, err)
	}
	defer rows.Close()

	var entries []config.RuleEntry
	for rows.Next() {
		e := config.RuleEntry{Kind: k}
		if err := rows.Scan(&e.Address, &e.SnipeHeightSOL, &e.TipBudgetSOL, &e.SlippagePct); err != nil {
			return nil, fmt.Errorf("scan %s rule: %w", kind, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read %s rules: %w", kind, err)
	}
	return BuildRules(kind, entries, initial)
}

func (s *SQLite) Close() error { return s.db.Close() }
