// Package memory persists incident fingerprints across sessions so a
// finished diagnosis can be compared against past incidents. Novelty
// is decided by Jaccard similarity over the fingerprint's string sets.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/moolen/causeway/internal/logging"
	"github.com/moolen/causeway/internal/models"
)

// NoveltyThreshold is the similarity above which an incident counts as
// a repeat of a known one.
const NoveltyThreshold = 0.8

// IncidentFingerprint is the durable summary of one diagnosed incident.
type IncidentFingerprint struct {
	ID                string        `json:"id"`
	ErrorPatterns     []string      `json:"error_patterns"`
	AffectedServices  []string      `json:"affected_services"`
	SymptomCategories []string      `json:"symptom_categories"`
	RootCause         string        `json:"root_cause"`
	ResolutionSteps   []string      `json:"resolution_steps"`
	Success           bool          `json:"success"`
	TimeToResolve     time.Duration `json:"time_to_resolve"`
	CreatedAt         time.Time     `json:"created_at"`
}

// featureSet flattens the three string sets into one membership set.
func (f IncidentFingerprint) featureSet() map[string]bool {
	set := make(map[string]bool, len(f.ErrorPatterns)+len(f.AffectedServices)+len(f.SymptomCategories))
	for _, s := range f.ErrorPatterns {
		set[s] = true
	}
	for _, s := range f.AffectedServices {
		set[s] = true
	}
	for _, s := range f.SymptomCategories {
		set[s] = true
	}
	return set
}

// Similarity is the Jaccard index over the union of both fingerprints'
// error patterns, affected services, and symptom categories. Two empty
// fingerprints share nothing and score 0.
func Similarity(a, b IncidentFingerprint) float64 {
	sa, sb := a.featureSet(), b.featureSet()
	if len(sa) == 0 && len(sb) == 0 {
		return 0
	}
	intersection := 0
	for s := range sa {
		if sb[s] {
			intersection++
		}
	}
	union := len(sa) + len(sb) - intersection
	return float64(intersection) / float64(union)
}

// FromEvidence condenses a finished session's pins and root cause into
// a fingerprint. Failed-pin claims become error patterns; evidence
// types become symptom categories.
func FromEvidence(pins []models.EvidencePin, rootCause string, timeToResolve time.Duration, success bool) IncidentFingerprint {
	patterns := make(map[string]bool)
	services := make(map[string]bool)
	symptoms := make(map[string]bool)
	for _, pin := range pins {
		if pin.Service != "" {
			services[pin.Service] = true
		}
		symptoms[string(pin.EvidenceType)] = true
		if pin.Severity == models.SeverityCritical || pin.Severity == models.SeverityHigh {
			patterns[pin.Claim] = true
		}
	}
	return IncidentFingerprint{
		ID:                uuid.NewString(),
		ErrorPatterns:     sortedKeys(patterns),
		AffectedServices:  sortedKeys(services),
		SymptomCategories: sortedKeys(symptoms),
		RootCause:         rootCause,
		Success:           success,
		TimeToResolve:     timeToResolve,
		CreatedAt:         time.Now().UTC(),
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

const schema = `
CREATE TABLE IF NOT EXISTS fingerprints (
	id                 TEXT PRIMARY KEY,
	created_at         TIMESTAMP NOT NULL,
	error_patterns     TEXT NOT NULL,
	affected_services  TEXT NOT NULL,
	symptom_categories TEXT NOT NULL,
	root_cause         TEXT NOT NULL,
	resolution_steps   TEXT NOT NULL,
	success            INTEGER NOT NULL,
	resolve_seconds    INTEGER NOT NULL
);
`

type fingerprintRow struct {
	ID                string    `db:"id"`
	CreatedAt         time.Time `db:"created_at"`
	ErrorPatterns     string    `db:"error_patterns"`
	AffectedServices  string    `db:"affected_services"`
	SymptomCategories string    `db:"symptom_categories"`
	RootCause         string    `db:"root_cause"`
	ResolutionSteps   string    `db:"resolution_steps"`
	Success           bool      `db:"success"`
	ResolveSeconds    int64     `db:"resolve_seconds"`
}

// Store is the embedded fingerprint database.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// Open connects to (and migrates) the fingerprint database at path.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open memory store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate memory store: %w", err)
	}
	return &Store{db: db, logger: logging.GetLogger("memory")}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save persists one fingerprint. An empty id gets a fresh one.
func (s *Store) Save(ctx context.Context, fp IncidentFingerprint) error {
	if fp.ID == "" {
		fp.ID = uuid.NewString()
	}
	if fp.CreatedAt.IsZero() {
		fp.CreatedAt = time.Now().UTC()
	}
	row, err := toRow(fp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO fingerprints
		 (id, created_at, error_patterns, affected_services, symptom_categories,
		  root_cause, resolution_steps, success, resolve_seconds)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.ID, row.CreatedAt, row.ErrorPatterns, row.AffectedServices,
		row.SymptomCategories, row.RootCause, row.ResolutionSteps,
		row.Success, row.ResolveSeconds)
	if err != nil {
		return fmt.Errorf("save fingerprint: %w", err)
	}
	return nil
}

// All returns every stored fingerprint, oldest first.
func (s *Store) All(ctx context.Context) ([]IncidentFingerprint, error) {
	var rows []fingerprintRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM fingerprints ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list fingerprints: %w", err)
	}
	out := make([]IncidentFingerprint, 0, len(rows))
	for _, row := range rows {
		fp, err := fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, nil
}

// MostSimilar returns the stored fingerprint closest to fp and its
// similarity. An empty store returns ok=false.
func (s *Store) MostSimilar(ctx context.Context, fp IncidentFingerprint) (IncidentFingerprint, float64, bool, error) {
	all, err := s.All(ctx)
	if err != nil {
		return IncidentFingerprint{}, 0, false, err
	}
	var (
		best      IncidentFingerprint
		bestScore = -1.0
	)
	for _, candidate := range all {
		if score := Similarity(fp, candidate); score > bestScore {
			best, bestScore = candidate, score
		}
	}
	if bestScore < 0 {
		return IncidentFingerprint{}, 0, false, nil
	}
	return best, bestScore, true, nil
}

// IsNovel reports whether no stored fingerprint reaches the novelty
// threshold against fp.
func (s *Store) IsNovel(ctx context.Context, fp IncidentFingerprint) (bool, error) {
	_, score, ok, err := s.MostSimilar(ctx, fp)
	if err != nil {
		return false, err
	}
	return !ok || score < NoveltyThreshold, nil
}

func toRow(fp IncidentFingerprint) (fingerprintRow, error) {
	patterns, err := json.Marshal(fp.ErrorPatterns)
	if err != nil {
		return fingerprintRow{}, fmt.Errorf("encode fingerprint: %w", err)
	}
	services, err := json.Marshal(fp.AffectedServices)
	if err != nil {
		return fingerprintRow{}, fmt.Errorf("encode fingerprint: %w", err)
	}
	symptoms, err := json.Marshal(fp.SymptomCategories)
	if err != nil {
		return fingerprintRow{}, fmt.Errorf("encode fingerprint: %w", err)
	}
	steps, err := json.Marshal(fp.ResolutionSteps)
	if err != nil {
		return fingerprintRow{}, fmt.Errorf("encode fingerprint: %w", err)
	}
	return fingerprintRow{
		ID:                fp.ID,
		CreatedAt:         fp.CreatedAt,
		ErrorPatterns:     string(patterns),
		AffectedServices:  string(services),
		SymptomCategories: string(symptoms),
		RootCause:         fp.RootCause,
		ResolutionSteps:   string(steps),
		Success:           fp.Success,
		ResolveSeconds:    int64(fp.TimeToResolve / time.Second),
	}, nil
}

func fromRow(row fingerprintRow) (IncidentFingerprint, error) {
	fp := IncidentFingerprint{
		ID:            row.ID,
		CreatedAt:     row.CreatedAt,
		RootCause:     row.RootCause,
		Success:       row.Success,
		TimeToResolve: time.Duration(row.ResolveSeconds) * time.Second,
	}
	for _, pair := range []struct {
		raw  string
		dest *[]string
	}{
		{row.ErrorPatterns, &fp.ErrorPatterns},
		{row.AffectedServices, &fp.AffectedServices},
		{row.SymptomCategories, &fp.SymptomCategories},
		{row.ResolutionSteps, &fp.ResolutionSteps},
	} {
		if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
			return IncidentFingerprint{}, fmt.Errorf("decode fingerprint %s: %w", row.ID, err)
		}
	}
	return fp, nil
}
