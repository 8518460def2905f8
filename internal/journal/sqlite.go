package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-ict/internal/model"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists the journal to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger *zap.Logger
}

// NewSQLiteRecorder opens (or creates) the database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger *zap.Logger) (*SQLiteRecorder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info("journal_opened", zap.String("path", dbPath))
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS decisions (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			bar_time    INTEGER NOT NULL,
			symbol      TEXT,
			source      TEXT,
			side        TEXT,
			confidence  REAL,
			gate        TEXT,
			entry_price REAL,
			stop        REAL,
			tp1         REAL,
			tp2         REAL,
			tp3         REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_time ON decisions(bar_time)`,

		`CREATE TABLE IF NOT EXISTS position_events (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			position_id TEXT NOT NULL,
			seq         INTEGER NOT NULL,
			symbol      TEXT,
			side        TEXT,
			event_type  TEXT,
			event_time  INTEGER NOT NULL,
			price       REAL,
			stop        REAL,
			size        REAL,
			reason      TEXT
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_events_pos_seq ON position_events(position_id, seq)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordDecision(symbol string, d model.Decision, gate string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var entry, stop, tp1, tp2, tp3 sql.NullFloat64
	if d.Setup != nil {
		entry = sql.NullFloat64{Float64: d.Setup.EntryPrice, Valid: true}
		stop = sql.NullFloat64{Float64: d.Setup.Stop, Valid: true}
		tp1 = sql.NullFloat64{Float64: d.Setup.TP1, Valid: true}
		tp2 = sql.NullFloat64{Float64: d.Setup.TP2, Valid: true}
		tp3 = sql.NullFloat64{Float64: d.Setup.TP3, Valid: true}
	}
	_, err := r.db.Exec(`INSERT INTO decisions
		(bar_time, symbol, source, side, confidence, gate, entry_price, stop, tp1, tp2, tp3)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		d.Time.UnixNano(), symbol, string(d.Source), string(d.Side), d.Confidence, gate,
		entry, stop, tp1, tp2, tp3,
	)
	return err
}

func (r *SQLiteRecorder) RecordEvent(e model.PositionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT OR REPLACE INTO position_events
		(position_id, seq, symbol, side, event_type, event_time, price, stop, size, reason)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		e.PositionID, e.Seq, e.Symbol, string(e.Side), string(e.Type), e.Time.UnixNano(),
		e.Price, e.Stop, e.Size, e.Reason,
	)
	return err
}

// Events returns a position's events ordered by sequence.
func (r *SQLiteRecorder) Events(positionID string) ([]model.PositionEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.Query(`SELECT position_id, seq, symbol, side, event_type, event_time, price, stop, size, reason
		FROM position_events WHERE position_id = ? ORDER BY seq`, positionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.PositionEvent
	for rows.Next() {
		var (
			e         model.PositionEvent
			side, typ string
			ts        int64
		)
		if err := rows.Scan(&e.PositionID, &e.Seq, &e.Symbol, &side, &typ, &ts, &e.Price, &e.Stop, &e.Size, &e.Reason); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Side = model.Side(side)
		e.Type = model.EventType(typ)
		e.Time = time.Unix(0, ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// RecentDecisions returns up to limit decisions, newest first.
func (r *SQLiteRecorder) RecentDecisions(limit int) ([]DecisionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT bar_time, symbol, source, side, confidence, gate, entry_price, stop, tp1, tp2, tp3
		FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []DecisionRecord
	for rows.Next() {
		var (
			rec                        DecisionRecord
			ts                         int64
			source, side               string
			entry, stop, tp1, tp2, tp3 sql.NullFloat64
		)
		if err := rows.Scan(&ts, &rec.Symbol, &source, &side, &rec.Decision.Confidence, &rec.Gate,
			&entry, &stop, &tp1, &tp2, &tp3); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		rec.Decision.Time = time.Unix(0, ts).UTC()
		rec.Decision.Source = model.DecisionSource(source)
		rec.Decision.Side = model.Side(side)
		if entry.Valid {
			rec.Decision.Setup = &model.TradeSetup{
				Symbol:     rec.Symbol,
				Side:       rec.Decision.Side,
				EntryPrice: entry.Float64,
				EntryTime:  rec.Decision.Time,
				Stop:       stop.Float64,
				TP1:        tp1.Float64,
				TP2:        tp2.Float64,
				TP3:        tp3.Float64,
				Source:     rec.Decision.Source,
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info("journal_closed")
	return r.db.Close()
}

var (
	_ Recorder = (*SQLiteRecorder)(nil)
	_ Recorder = (*NoopRecorder)(nil)
)
