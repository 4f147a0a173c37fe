package catalog

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/matchup/internal/matchup"
)

// Run is the summary row of a stored matchup run.
type Run struct {
	ID           string
	UseCase      string
	Strategy     string
	Start        time.Time
	End          time.Time
	RawCount     int
	MatchupCount int
	Skipped      int
	ConfigJSON   string
	CreatedAt    time.Time
}

// SaveRun stores the result of a run with its matchup sets, samples and
// diagnostics in one transaction. The run id is taken from res.RunID, or
// generated when empty, and returned.
func (s *Store) SaveRun(run Run, res *matchup.Result) (string, error) {
	if res == nil {
		return "", errors.New("nil result")
	}
	id := res.RunID
	if id == "" {
		id = uuid.NewString()
	}
	if run.ConfigJSON == "" {
		run.ConfigJSON = "{}"
	}

	tx, err := s.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO runs (run_id, use_case, strategy, start_ms, end_ms, raw_count, matchup_count, skipped, config_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, run.UseCase, run.Strategy, run.Start.UnixMilli(), run.End.UnixMilli(),
		res.RawCount, res.NumMatchups(), res.Skipped, run.ConfigJSON,
	); err != nil {
		return "", fmt.Errorf("failed to insert run: %w", err)
	}

	setStmt, err := tx.Prepare(`
		INSERT INTO matchup_sets (set_id, run_id, ordinal, primary_sensor, secondary_sensor, primary_path, secondary_path)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare matchup set insert: %w", err)
	}
	defer setStmt.Close()

	sampleStmt, err := tx.Prepare(`
		INSERT INTO samples (set_id, sample_set, member, x, y, lon, lat, time_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare sample insert: %w", err)
	}
	defer sampleStmt.Close()

	for ordinal, m := range res.Collection.Sets() {
		setID := m.ID
		if setID == "" {
			setID = uuid.NewString()
		}
		if _, err := setStmt.Exec(setID, id, ordinal, m.PrimarySensor, m.SecondarySensor, m.PrimaryPath, m.SecondaryPath); err != nil {
			return "", fmt.Errorf("failed to insert matchup set %s: %w", setID, err)
		}
		for i, ss := range m.SampleSets {
			// member 0 is the primary
			members := append([]matchup.Sample{ss.Primary}, ss.Secondaries...)
			for member, smp := range members {
				if _, err := sampleStmt.Exec(setID, i, member, smp.X, smp.Y, smp.Lon, smp.Lat, smp.Time); err != nil {
					return "", fmt.Errorf("failed to insert sample: %w", err)
				}
			}
		}
	}

	for _, d := range res.Diagnostics {
		if _, err := tx.Exec(`INSERT INTO run_diagnostics (run_id, path, message) VALUES (?, ?, ?)`, id, d.Path, d.Message); err != nil {
			return "", fmt.Errorf("failed to insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit run: %w", err)
	}
	opsf("saved run %s: %d matchup sets, %d sample sets", id, res.Collection.Len(), res.NumMatchups())
	return id, nil
}

// RunSummary returns the summary row of a run.
func (s *Store) RunSummary(id string) (Run, error) {
	row := s.db.QueryRow(`
		SELECT run_id, use_case, strategy, start_ms, end_ms, raw_count, matchup_count, skipped, config_json, created_at
		FROM runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return r, err
}

// ListRuns returns the most recent runs first, at most limit of them. A
// limit <= 0 returns all runs.
func (s *Store) ListRuns(limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.Query(`
		SELECT run_id, use_case, strategy, start_ms, end_ms, raw_count, matchup_count, skipped, config_json, created_at
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRun(row scanner) (Run, error) {
	var (
		r             Run
		startMs, endMs int64
		created       sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.UseCase, &r.Strategy, &startMs, &endMs,
		&r.RawCount, &r.MatchupCount, &r.Skipped, &r.ConfigJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("failed to scan run: %w", err)
	}
	r.Start = time.UnixMilli(startMs).UTC()
	r.End = time.UnixMilli(endMs).UTC()
	if created.Valid {
		r.CreatedAt = created.Time
	}
	return r, nil
}

// LoadRun rebuilds the stored result of a run. Sample sets and matchup sets
// come back in the order they were saved.
func (s *Store) LoadRun(id string) (*matchup.Result, error) {
	summary, err := s.RunSummary(id)
	if err != nil {
		return nil, err
	}

	res := &matchup.Result{
		RunID:    summary.ID,
		RawCount: summary.RawCount,
		Skipped:  summary.Skipped,
	}

	setRows, err := s.db.Query(`
		SELECT set_id, primary_sensor, secondary_sensor, primary_path, secondary_path
		FROM matchup_sets WHERE run_id = ? ORDER BY ordinal`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query matchup sets: %w", err)
	}
	var sets []matchup.MatchupSet
	for setRows.Next() {
		var m matchup.MatchupSet
		if err := setRows.Scan(&m.ID, &m.PrimarySensor, &m.SecondarySensor, &m.PrimaryPath, &m.SecondaryPath); err != nil {
			setRows.Close()
			return nil, fmt.Errorf("failed to scan matchup set: %w", err)
		}
		sets = append(sets, m)
	}
	setRows.Close()
	if err := setRows.Err(); err != nil {
		return nil, err
	}

	for i := range sets {
		if sets[i].SampleSets, err = s.loadSamples(sets[i].ID); err != nil {
			return nil, err
		}
	}
	res.Collection = matchup.NewCollection(sets...)

	diagRows, err := s.db.Query(`SELECT path, message FROM run_diagnostics WHERE run_id = ? ORDER BY rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query diagnostics: %w", err)
	}
	defer diagRows.Close()
	for diagRows.Next() {
		var d matchup.Diagnostic
		if err := diagRows.Scan(&d.Path, &d.Message); err != nil {
			return nil, fmt.Errorf("failed to scan diagnostic: %w", err)
		}
		res.Diagnostics = append(res.Diagnostics, d)
	}
	return res, diagRows.Err()
}

func (s *Store) loadSamples(setID string) ([]matchup.SampleSet, error) {
	rows, err := s.db.Query(`
		SELECT sample_set, member, x, y, lon, lat, time_ms
		FROM samples WHERE set_id = ? ORDER BY sample_set, member`, setID)
	if err != nil {
		return nil, fmt.Errorf("failed to query samples: %w", err)
	}
	defer rows.Close()

	var out []matchup.SampleSet
	for rows.Next() {
		var (
			idx, member int
			smp         matchup.Sample
		)
		if err := rows.Scan(&idx, &member, &smp.X, &smp.Y, &smp.Lon, &smp.Lat, &smp.Time); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}
		if member == 0 {
			out = append(out, matchup.SampleSet{Primary: smp})
			continue
		}
		if len(out) == 0 || idx != len(out)-1 {
			return nil, fmt.Errorf("matchup set %s: secondary sample without primary", setID)
		}
		out[len(out)-1].AddSecondary(smp)
	}
	return out, rows.Err()
}

// DeleteRun removes a run and everything stored with it.
func (s *Store) DeleteRun(id string) error {
	res, err := s.db.Exec(`DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}
