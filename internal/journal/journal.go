package journal

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hunterwarburton/solfleet/internal/core"
	"github.com/hunterwarburton/solfleet/internal/logger"
)

// recordBuffer is how many outcomes may wait for the writer before Record
// starts dropping them.
const recordBuffer = 1024

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	operation   TEXT NOT NULL,
	asset       TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	landed      INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	abandoned   INTEGER NOT NULL DEFAULT 0,
	total       TEXT NOT NULL DEFAULT '0'
);
CREATE TABLE IF NOT EXISTS outcomes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id      INTEGER NOT NULL REFERENCES runs(id),
	address     TEXT NOT NULL,
	kind        TEXT NOT NULL,
	signature   TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	amount      TEXT NOT NULL DEFAULT '0',
	recorded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS outcomes_run ON outcomes(run_id);
`

// Journal persists batch outcomes to a SQLite database.
type Journal struct {
	db *sql.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	// SQLite allows one writer; serialise at the pool.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// RunInfo is one row of the runs table.
type RunInfo struct {
	ID        int64
	Operation string
	Asset     string
	Started   time.Time
	Finished  time.Time
	Landed    int
	Skipped   int
	Abandoned int
	Total     string
}

// OutcomeRecord is one row of the outcomes table.
type OutcomeRecord struct {
	Address   string
	Kind      string
	Signature string
	Reason    string
	Amount    string
	Recorded  time.Time
}

type outcomeRow struct {
	address string
	outcome core.Outcome
	at      time.Time
}

// Run journals the outcomes of one batch call. It implements core.Reporter.
type Run struct {
	ID int64

	journal *Journal
	rows    chan outcomeRow
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// BeginRun inserts a run row and starts its background writer.
func (j *Journal) BeginRun(op core.Operation, asset core.Asset) (*Run, error) {
	res, err := j.db.Exec(
		`INSERT INTO runs (operation, asset, started_at) VALUES (?, ?, ?)`,
		op.String(), asset.String(), time.Now().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to read run id: %w", err)
	}

	r := &Run{
		ID:      id,
		journal: j,
		rows:    make(chan outcomeRow, recordBuffer),
		done:    make(chan struct{}),
	}
	go r.write()
	return r, nil
}

// Record queues an outcome for writing. It never blocks the caller: when the
// queue is full or the run is finished the outcome is dropped and logged.
func (r *Run) Record(address string, outcome core.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		logger.Warn("Journal run %d already finished, dropping outcome for %s", r.ID, address)
		return
	}
	select {
	case r.rows <- outcomeRow{address: address, outcome: outcome, at: time.Now()}:
	default:
		r.dropped++
		logger.Warn("Journal queue full, dropping outcome for %s", address)
	}
}

func (r *Run) write() {
	defer close(r.done)
	for row := range r.rows {
		o := row.outcome
		sig := ""
		if o.HasSignature() {
			sig = o.Signature.String()
		}
		_, err := r.journal.db.Exec(
			`INSERT INTO outcomes (run_id, address, kind, signature, reason, amount, recorded_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ID, row.address, o.Kind.String(), sig, o.Reason,
			fmt.Sprintf("%d", o.Amount), row.at.UnixMilli(),
		)
		if err != nil {
			logger.Error("Failed to journal outcome for %s: %v", row.address, err)
		}
	}
}

// Finish drains queued outcomes and stores the summary counters. Outcomes
// recorded after Finish are dropped.
func (r *Run) Finish(summary *core.BatchSummary) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.rows)
	}
	dropped := r.dropped
	r.mu.Unlock()
	<-r.done

	if dropped > 0 {
		logger.Warn("Journal run %d dropped %d outcomes", r.ID, dropped)
	}
	if summary == nil {
		return nil
	}

	_, err := r.journal.db.Exec(
		`UPDATE runs SET finished_at = ?, landed = ?, skipped = ?, abandoned = ?, total = ? WHERE id = ?`,
		time.Now().UnixMilli(), summary.Landed, summary.Skipped, summary.Abandoned,
		fmt.Sprintf("%d", summary.Total), r.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run %d: %w", r.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (j *Journal) Runs(limit int) ([]RunInfo, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(
		`SELECT id, operation, asset, started_at, COALESCE(finished_at, 0), landed, skipped, abandoned, total
		 FROM runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var ri RunInfo
		var started, finished int64
		if err := rows.Scan(&ri.ID, &ri.Operation, &ri.Asset, &started, &finished,
			&ri.Landed, &ri.Skipped, &ri.Abandoned, &ri.Total); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		ri.Started = time.UnixMilli(started)
		if finished > 0 {
			ri.Finished = time.UnixMilli(finished)
		}
		runs = append(runs, ri)
	}
	return runs, rows.Err()
}

// Outcomes returns the outcomes recorded for a run in insertion order.
func (j *Journal) Outcomes(runID int64) ([]OutcomeRecord, error) {
	rows, err := j.db.Query(
		`SELECT address, kind, signature, reason, amount, recorded_at
		 FROM outcomes WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes of run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var rec OutcomeRecord
		var at int64
		if err := rows.Scan(&rec.Address, &rec.Kind, &rec.Signature, &rec.Reason, &rec.Amount, &at); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		rec.Recorded = time.UnixMilli(at)
		out = append(out, rec)
	}
	return out, rows.Err()
}
