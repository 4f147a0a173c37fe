// Package matchup holds the value types that flow through a matchup run:
// samples, sample sets grouped per observation pair, and the run result.
package matchup

import (
	"time"
)

// Sample is a located, timestamped observation point. Time is epoch
// milliseconds.
type Sample struct {
	X    int
	Y    int
	Lon  float64
	Lat  float64
	Time int64
}

// NewSample builds a Sample from a wall-clock time.
func NewSample(x, y int, lon, lat float64, t time.Time) Sample {
	return Sample{X: x, Y: y, Lon: lon, Lat: lat, Time: t.UnixMilli()}
}

// Timestamp returns the sample time as a UTC time.Time.
func (s Sample) Timestamp() time.Time {
	return time.UnixMilli(s.Time).UTC()
}

// SampleSet is one primary sample and the secondary samples believed to
// describe the same event. Secondaries keep insertion order.
type SampleSet struct {
	Primary     Sample
	Secondaries []Sample
}

// NewSampleSet returns a set for primary with the given secondaries.
func NewSampleSet(primary Sample, secondaries ...Sample) SampleSet {
	set := SampleSet{Primary: primary}
	for _, s := range secondaries {
		set.AddSecondary(s)
	}
	return set
}

// AddSecondary appends a secondary sample.
func (s *SampleSet) AddSecondary(sample Sample) {
	s.Secondaries = append(s.Secondaries, sample)
}

// Secondary returns the first secondary sample. ok is false if there is none.
func (s SampleSet) Secondary() (Sample, bool) {
	if len(s.Secondaries) == 0 {
		return Sample{}, false
	}
	return s.Secondaries[0], true
}

// Clone returns a deep copy of the set.
func (s SampleSet) Clone() SampleSet {
	out := SampleSet{Primary: s.Primary}
	if len(s.Secondaries) > 0 {
		out.Secondaries = make([]Sample, len(s.Secondaries))
		copy(out.Secondaries, s.Secondaries)
	}
	return out
}

// MatchupSet groups the sample sets found between one primary and one
// secondary observation.
type MatchupSet struct {
	ID              string
	PrimarySensor   string
	SecondarySensor string
	PrimaryPath     string
	SecondaryPath   string
	SampleSets      []SampleSet
}

// WithSampleSets returns a copy of m carrying sets instead of its own.
func (m MatchupSet) WithSampleSets(sets []SampleSet) MatchupSet {
	m.SampleSets = sets
	return m
}

// NumSampleSets returns the number of sample sets.
func (m MatchupSet) NumSampleSets() int { return len(m.SampleSets) }

// Collection is the ordered output of one pipeline stage. Stages never
// modify a collection they were handed; they build a new one. The new
// collection may share SampleSets and Secondaries backing arrays with its
// input, so sample slices are read-only once added.
type Collection struct {
	sets []MatchupSet
}

// NewCollection returns a collection holding sets in order. Sets without
// sample sets are dropped.
func NewCollection(sets ...MatchupSet) *Collection {
	c := &Collection{}
	for _, s := range sets {
		c.Add(s)
	}
	return c
}

// Add appends a matchup set if it holds at least one sample set.
func (c *Collection) Add(s MatchupSet) {
	if len(s.SampleSets) == 0 {
		return
	}
	c.sets = append(c.sets, s)
}

// Sets returns the matchup sets in order. The slice must not be modified.
func (c *Collection) Sets() []MatchupSet {
	if c == nil {
		return nil
	}
	return c.sets
}

// Len returns the number of matchup sets.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.sets)
}

// NumMatchups returns the total number of sample sets over all matchup sets.
func (c *Collection) NumMatchups() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, s := range c.sets {
		n += len(s.SampleSets)
	}
	return n
}

// IsEmpty reports whether the collection holds no sample sets.
func (c *Collection) IsEmpty() bool {
	return c.NumMatchups() == 0
}

// First returns the first matchup set. ok is false for an empty collection.
func (c *Collection) First() (MatchupSet, bool) {
	if c.Len() == 0 {
		return MatchupSet{}, false
	}
	return c.sets[0], true
}

// Map builds a new collection by applying fn to the sample sets of every
// matchup set. Matchup sets left empty by fn are dropped.
func (c *Collection) Map(fn func(MatchupSet) []SampleSet) *Collection {
	out := &Collection{}
	for _, s := range c.Sets() {
		out.Add(s.WithSampleSets(fn(s)))
	}
	return out
}

// Diagnostic records why an observation was skipped.
type Diagnostic struct {
	Path    string
	Message string
}

// Result is the outcome of one matchup run.
type Result struct {
	RunID       string
	Collection  *Collection
	RawCount    int
	Skipped     int
	Diagnostics []Diagnostic
}

// NumMatchups returns the number of accepted sample sets.
func (r *Result) NumMatchups() int {
	if r == nil {
		return 0
	}
	return r.Collection.NumMatchups()
}
