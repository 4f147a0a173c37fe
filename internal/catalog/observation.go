package catalog

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/banshee-data/matchup/internal/geometry"
)

// NodeType classifies a polar-orbiting pass.
type NodeType string

const (
	NodeUndefined  NodeType = "undefined"
	NodeAscending  NodeType = "ascending"
	NodeDescending NodeType = "descending"
)

// TimeAxisRecord is the stored form of a geometry.TimeAxis.
type TimeAxisRecord struct {
	Points    []orb.Point `json:"points"`
	StartTime time.Time   `json:"start"`
	EndTime   time.Time   `json:"end"`
}

// TimeAxis rebuilds the axis.
func (r TimeAxisRecord) TimeAxis() (*geometry.TimeAxis, error) {
	return geometry.NewTimeAxis(r.Points, r.StartTime, r.EndTime)
}

// Observation is the catalog metadata of one sensor product.
type Observation struct {
	ID        int64
	Sensor    string
	Path      string
	Start     time.Time
	Stop      time.Time
	NodeType  NodeType
	Footprint orb.MultiPolygon
	TimeAxes  []TimeAxisRecord
}

// Query selects observations of one sensor overlapping [Start, Stop]. A
// non-nil Footprint further restricts the result to observations whose
// footprint bounds intersect it.
type Query struct {
	Sensor    string
	Start     time.Time
	Stop      time.Time
	Footprint *orb.Bound
}

// Insert stores obs and returns its id. Re-inserting the same sensor and path
// replaces the earlier record.
func (s *Store) Insert(obs Observation) (int64, error) {
	if obs.Sensor == "" || obs.Path == "" {
		return 0, errors.New("observation needs sensor and path")
	}
	if obs.Stop.Before(obs.Start) {
		return 0, fmt.Errorf("observation %s stops before it starts", obs.Path)
	}
	if obs.NodeType == "" {
		obs.NodeType = NodeUndefined
	}
	axes, err := json.Marshal(nonNilAxes(obs.TimeAxes))
	if err != nil {
		return 0, fmt.Errorf("failed to encode time axes: %w", err)
	}

	var minLon, minLat, maxLon, maxLat sql.NullFloat64
	if len(obs.Footprint) > 0 {
		b := obs.Footprint.Bound()
		minLon = sql.NullFloat64{Float64: b.Min[0], Valid: true}
		minLat = sql.NullFloat64{Float64: b.Min[1], Valid: true}
		maxLon = sql.NullFloat64{Float64: b.Max[0], Valid: true}
		maxLat = sql.NullFloat64{Float64: b.Max[1], Valid: true}
	}

	var id int64
	err = s.db.QueryRow(`
		INSERT INTO observations (sensor, path, start_ms, stop_ms, node_type, footprint_wkt,
			min_lon, min_lat, max_lon, max_lat, time_axes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (sensor, path) DO UPDATE SET
			start_ms = excluded.start_ms,
			stop_ms = excluded.stop_ms,
			node_type = excluded.node_type,
			footprint_wkt = excluded.footprint_wkt,
			min_lon = excluded.min_lon,
			min_lat = excluded.min_lat,
			max_lon = excluded.max_lon,
			max_lat = excluded.max_lat,
			time_axes = excluded.time_axes
		RETURNING id`,
		obs.Sensor, obs.Path, obs.Start.UnixMilli(), obs.Stop.UnixMilli(), string(obs.NodeType),
		geometry.MarshalFootprint(obs.Footprint), minLon, minLat, maxLon, maxLat, string(axes),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert observation %s: %w", obs.Path, err)
	}
	return id, nil
}

func nonNilAxes(axes []TimeAxisRecord) []TimeAxisRecord {
	if axes == nil {
		return []TimeAxisRecord{}
	}
	return axes
}

const observationColumns = `id, sensor, path, start_ms, stop_ms, node_type, footprint_wkt, time_axes`

// QueryObservations returns the matching observations ordered by start time.
func (s *Store) QueryObservations(q Query) ([]Observation, error) {
	var where []string
	var args []any

	where = append(where, "sensor = ?")
	args = append(args, q.Sensor)
	if !q.Start.IsZero() {
		where = append(where, "stop_ms >= ?")
		args = append(args, q.Start.UnixMilli())
	}
	if !q.Stop.IsZero() {
		where = append(where, "start_ms <= ?")
		args = append(args, q.Stop.UnixMilli())
	}
	if q.Footprint != nil {
		where = append(where, "min_lon <= ? AND max_lon >= ? AND min_lat <= ? AND max_lat >= ?")
		args = append(args, q.Footprint.Max[0], q.Footprint.Min[0], q.Footprint.Max[1], q.Footprint.Min[1])
	}

	rows, err := s.db.Query(`SELECT `+observationColumns+` FROM observations WHERE `+
		strings.Join(where, " AND ")+` ORDER BY start_ms, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		obs, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		if q.Footprint != nil && !boundIntersects(obs.Footprint, *q.Footprint) {
			continue
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	diagf("query %s [%s, %s]: %d observations", q.Sensor, q.Start.Format(time.RFC3339), q.Stop.Format(time.RFC3339), len(out))
	return out, nil
}

// Observation returns the observation with the given id.
func (s *Store) Observation(id int64) (Observation, error) {
	row := s.db.QueryRow(`SELECT `+observationColumns+` FROM observations WHERE id = ?`, id)
	obs, err := scanObservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Observation{}, fmt.Errorf("observation %d: %w", id, ErrNotFound)
	}
	return obs, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanObservation(row scanner) (Observation, error) {
	var (
		obs             Observation
		startMs, stopMs int64
		nodeType, wkt   string
		axes            string
	)
	if err := row.Scan(&obs.ID, &obs.Sensor, &obs.Path, &startMs, &stopMs, &nodeType, &wkt, &axes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Observation{}, err
		}
		return Observation{}, fmt.Errorf("failed to scan observation: %w", err)
	}
	obs.Start = time.UnixMilli(startMs).UTC()
	obs.Stop = time.UnixMilli(stopMs).UTC()
	obs.NodeType = NodeType(nodeType)

	fp, err := geometry.ParseFootprint(wkt)
	if err != nil {
		return Observation{}, fmt.Errorf("observation %d: %w", obs.ID, err)
	}
	obs.Footprint = fp
	if err := json.Unmarshal([]byte(axes), &obs.TimeAxes); err != nil {
		return Observation{}, fmt.Errorf("observation %d: failed to decode time axes: %w", obs.ID, err)
	}
	return obs, nil
}

func boundIntersects(fp orb.MultiPolygon, b orb.Bound) bool {
	for _, p := range fp {
		if p.Bound().Intersects(b) {
			return true
		}
	}
	return false
}
