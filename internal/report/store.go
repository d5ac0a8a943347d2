package report

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/cxd309/nstraffic/internal/config"
	"github.com/cxd309/nstraffic/internal/engine"
	"github.com/cxd309/nstraffic/internal/sweep"
)

// Store persists sweeps and their runs in a SQLite database.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Summary aggregates the repetitions of one combination.
type Summary struct {
	CombinationIndex int     `json:"combination_index"`
	Density          float64 `json:"density"`
	FastRatio        float64 `json:"fast_car_ratio"`
	Runs             int     `json:"runs"`
	MeanDistance     float64 `json:"mean_distance"`
	MeanSlowDistance float64 `json:"mean_slow_distance"`
	MeanFastDistance float64 `json:"mean_fast_distance"`
	MeanCrossings    float64 `json:"mean_cars_passing_end"`
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateSweep records a sweep definition and returns its ID.
func (s *Store) CreateSweep(ctx context.Context, sw *config.Sweep) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, err := json.Marshal(sw)
	if err != nil {
		return 0, fmt.Errorf("failed to encode sweep: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sweeps (name, definition, created_at) VALUES (?, ?, datetime('now'))`,
		sw.Name, string(def))
	if err != nil {
		return 0, fmt.Errorf("failed to insert sweep: %w", err)
	}
	return res.LastInsertId()
}

// SaveRun records one run of a sweep.
func (s *Store) SaveRun(ctx context.Context, sweepID int64, rec sweep.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	params, err := json.Marshal(rec.Combination.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}
	result, err := json.Marshal(rec.Result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	// The seed is stored bit for bit in a signed column.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (
			sweep_id, combination_index, repetition, seed, density, fast_ratio,
			total_distance, slow_distance, fast_distance, cars_passing_end, params, result
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sweepID, rec.Combination.Index, rec.Repetition, int64(rec.Seed),
		rec.Combination.Density, rec.Combination.FastRatio,
		rec.Result.TotalDistance, rec.Result.SlowDistance, rec.Result.FastDistance,
		rec.Result.CarsPassingEnd, string(params), string(result))
	if err != nil {
		return fmt.Errorf("failed to insert run %d/%d: %w", rec.Combination.Index, rec.Repetition, err)
	}
	return nil
}

// Runs returns every run of a sweep ordered by combination and repetition.
func (s *Store) Runs(ctx context.Context, sweepID int64) ([]sweep.RunRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT combination_index, repetition, seed, density, fast_ratio, params, result
		FROM runs WHERE sweep_id = ?
		ORDER BY combination_index, repetition`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []sweep.RunRecord
	for rows.Next() {
		var (
			rec            sweep.RunRecord
			seed           int64
			params, result string
		)
		if err := rows.Scan(&rec.Combination.Index, &rec.Repetition, &seed,
			&rec.Combination.Density, &rec.Combination.FastRatio, &params, &result); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.Seed = uint64(seed)
		var p config.Params
		if err := json.Unmarshal([]byte(params), &p); err != nil {
			return nil, fmt.Errorf("failed to decode params of run %d/%d: %w", rec.Combination.Index, rec.Repetition, err)
		}
		rec.Combination.Params = p
		var r engine.Result
		if err := json.Unmarshal([]byte(result), &r); err != nil {
			return nil, fmt.Errorf("failed to decode result of run %d/%d: %w", rec.Combination.Index, rec.Repetition, err)
		}
		rec.Result = r
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summaries averages the runs of a sweep per combination.
func (s *Store) Summaries(ctx context.Context, sweepID int64) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT combination_index, MIN(density), MIN(fast_ratio), COUNT(*),
		       AVG(total_distance), AVG(slow_distance), AVG(fast_distance), AVG(cars_passing_end)
		FROM runs WHERE sweep_id = ?
		GROUP BY combination_index
		ORDER BY combination_index`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.CombinationIndex, &sum.Density, &sum.FastRatio, &sum.Runs,
			&sum.MeanDistance, &sum.MeanSlowDistance, &sum.MeanFastDistance, &sum.MeanCrossings); err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}
