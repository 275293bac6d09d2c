// Package decisionlog journals every inference round: prompts, raw output,
// extracted reasoning and the decisions that survived validation.
package decisionlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"arena/internal/decision"

	_ "modernc.org/sqlite"
)

// DecisionLogStore is a sqlite-backed append-only journal.
type DecisionLogStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	ownsDB bool
}

// DecisionLogRecord is one inference round for one agent.
type DecisionLogRecord struct {
	ID         int64                    `json:"id"`
	TraceID    string                   `json:"trace_id"`
	Timestamp  int64                    `json:"ts"`
	AgentID    string                   `json:"agent_id"`
	ProviderID string                   `json:"provider_id"`
	Stage      string                   `json:"stage"`
	System     string                   `json:"system_prompt"`
	User       string                   `json:"user_prompt"`
	RawOutput  string                   `json:"raw_output"`
	Reasoning  string                   `json:"reasoning,omitempty"`
	Result     string                   `json:"result"`
	Dropped    int                      `json:"dropped"`
	Decisions  []decision.TradeDecision `json:"decisions"`
	Symbols    []string                 `json:"symbols,omitempty"`
	LatencyMs  int64                    `json:"latency_ms"`
	Error      string                   `json:"error,omitempty"`
}

// Query filters ListDecisions; zero values match everything.
type Query struct {
	AgentID  string
	Provider string
	Symbols  []string
	Limit    int
	Offset   int
}

// NewDecisionLogStore opens (and creates) the journal at path.
func NewDecisionLogStore(path string) (*DecisionLogStore, error) {
	if path == "" {
		return nil, fmt.Errorf("decision log path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(2)
		db.SetMaxIdleConns(2)
	}
	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return &DecisionLogStore{db: db, path: path, ownsDB: true}, nil
}

// UseExternalDB shares a connection opened elsewhere (the gorm store) so a
// single sqlite file is not locked by two pools.
func (s *DecisionLogStore) UseExternalDB(db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("external db is nil")
	}
	if err := ensureSchema(db); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ownsDB && s.db != nil && s.db != db {
		_ = s.db.Close()
	}
	s.db = db
	s.ownsDB = false
	return nil
}

// NewSharedDecisionLogStore builds a journal on an existing connection.
func NewSharedDecisionLogStore(db *sql.DB) (*DecisionLogStore, error) {
	s := &DecisionLogStore{}
	if err := s.UseExternalDB(db); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *DecisionLogStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	if !s.ownsDB {
		s.db = nil
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *DecisionLogStore) conn() (*sql.DB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, fmt.Errorf("decision log store is closed")
	}
	return s.db, nil
}

func ensureSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decision_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			trace_id TEXT,
			ts INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			provider_id TEXT,
			stage TEXT,
			system_prompt TEXT,
			user_prompt TEXT,
			raw_output TEXT,
			decisions_json TEXT,
			symbols TEXT,
			error TEXT,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_agent_ts ON decision_logs(agent_id, ts DESC, id DESC);`,
		`CREATE INDEX IF NOT EXISTS idx_decision_logs_trace ON decision_logs(trace_id);`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return ensureColumns(db)
}

// ensureColumns upgrades journals written before these columns existed.
func ensureColumns(db *sql.DB) error {
	cols := []struct {
		column string
		typ    string
	}{
		{"reasoning", "TEXT"},
		{"result", "TEXT"},
		{"dropped", "INTEGER DEFAULT 0"},
		{"latency_ms", "INTEGER DEFAULT 0"},
	}
	for _, col := range cols {
		if err := addColumnIfMissing(db, "decision_logs", col.column, col.typ); err != nil {
			return err
		}
	}
	return nil
}

func addColumnIfMissing(db *sql.DB, table, column, typ string) error {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	exists := false
	for rows.Next() {
		var cid, notnull, pk int
		var name, ctype string
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			exists = true
		}
	}
	rows.Close()
	if exists {
		return nil
	}
	_, err = db.Exec(fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, typ))
	return err
}

// Insert appends rec and returns its id.
func (s *DecisionLogStore) Insert(ctx context.Context, rec DecisionLogRecord) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	now := time.Now().UnixMilli()
	ts := rec.Timestamp
	if ts == 0 {
		ts = now
	}
	if len(rec.Symbols) == 0 {
		rec.Symbols = collectSymbols(rec.Decisions)
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO decision_logs
			(trace_id, ts, agent_id, provider_id, stage, system_prompt, user_prompt, raw_output,
			 reasoning, result, dropped, decisions_json, symbols, latency_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.TraceID, ts, rec.AgentID, rec.ProviderID, rec.Stage, rec.System, rec.User, rec.RawOutput,
		rec.Reasoning, rec.Result, rec.Dropped, encode(rec.Decisions), encodeSymbolBlob(rec.Symbols),
		rec.LatencyMs, rec.Error, now,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const selectColumns = `SELECT id, trace_id, ts, agent_id, provider_id, stage, system_prompt, user_prompt,
	raw_output, reasoning, result, dropped, decisions_json, symbols, latency_ms, error FROM decision_logs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (DecisionLogRecord, error) {
	var rec DecisionLogRecord
	var trace, provider, stage, system, user sql.NullString
	var raw, reasoning, result, decisions, syms, errStr sql.NullString
	var dropped, latency sql.NullInt64
	if err := scanner.Scan(&rec.ID, &trace, &rec.Timestamp, &rec.AgentID, &provider, &stage, &system, &user,
		&raw, &reasoning, &result, &dropped, &decisions, &syms, &latency, &errStr); err != nil {
		return rec, err
	}
	rec.TraceID = trace.String
	rec.ProviderID = provider.String
	rec.Stage = stage.String
	rec.System = system.String
	rec.User = user.String
	rec.RawOutput = raw.String
	rec.Reasoning = reasoning.String
	rec.Result = result.String
	rec.Dropped = int(dropped.Int64)
	rec.LatencyMs = latency.Int64
	rec.Error = errStr.String
	rec.Symbols = decodeSymbolBlob(syms.String)
	if decisions.String != "" {
		_ = json.Unmarshal([]byte(decisions.String), &rec.Decisions)
	}
	return rec, nil
}

func (s *DecisionLogStore) GetDecision(ctx context.Context, id int64) (DecisionLogRecord, error) {
	if id <= 0 {
		return DecisionLogRecord{}, fmt.Errorf("invalid decision id")
	}
	db, err := s.conn()
	if err != nil {
		return DecisionLogRecord{}, err
	}
	return scanRecord(db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id))
}

// ListDecisions returns newest first.
func (s *DecisionLogStore) ListDecisions(ctx context.Context, q Query) ([]DecisionLogRecord, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	where, args := buildFilter(q)
	args = append(args, limit, offset)
	rows, err := db.QueryContext(ctx, selectColumns+where+" ORDER BY ts DESC, id DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []DecisionLogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func (s *DecisionLogStore) CountDecisions(ctx context.Context, q Query) (int, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	where, args := buildFilter(q)
	var n int
	err = db.QueryRowContext(ctx, "SELECT COUNT(1) FROM decision_logs"+where, args...).Scan(&n)
	return n, err
}

// ListByTraceID returns every round of one cycle in insertion order.
func (s *DecisionLogStore) ListByTraceID(ctx context.Context, traceID string) ([]DecisionLogRecord, error) {
	traceID = strings.TrimSpace(traceID)
	if traceID == "" {
		return nil, fmt.Errorf("trace id is required")
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, selectColumns+" WHERE trace_id = ? ORDER BY id ASC", traceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []DecisionLogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, rec)
	}
	return list, rows.Err()
}

func buildFilter(q Query) (string, []any) {
	var args []any
	var sb strings.Builder
	sb.WriteString(" WHERE 1=1")
	if q.AgentID != "" {
		sb.WriteString(" AND agent_id=?")
		args = append(args, q.AgentID)
	}
	if q.Provider != "" {
		sb.WriteString(" AND provider_id=?")
		args = append(args, q.Provider)
	}
	symbols := normalizeSymbols(q.Symbols)
	if len(symbols) > 0 {
		sb.WriteString(" AND (")
		for i, sym := range symbols {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.WriteString("symbols LIKE ?")
			args = append(args, "%,"+sym+",%")
		}
		sb.WriteString(")")
	}
	return sb.String(), args
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

func collectSymbols(ds []decision.TradeDecision) []string {
	out := make([]string, 0, len(ds))
	for _, d := range ds {
		if d.Symbol != "" {
			out = append(out, d.Symbol)
		}
	}
	return normalizeSymbols(out)
}

// encodeSymbolBlob stores ",BTC,ETH," so LIKE '%,BTC,%' matches whole symbols.
func encodeSymbolBlob(symbols []string) string {
	symbols = normalizeSymbols(symbols)
	if len(symbols) == 0 {
		return ""
	}
	return "," + strings.Join(symbols, ",") + ","
}

func decodeSymbolBlob(blob string) []string {
	blob = strings.Trim(blob, ",")
	if blob == "" {
		return nil
	}
	return strings.Split(blob, ",")
}

func normalizeSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
