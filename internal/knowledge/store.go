// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package knowledge persists papers, sections, insights, and the bites
// built from them in a single SQLite database. Embeddings are stored as
// JSON arrays alongside each insight; similarity ranking happens in Go
// over SQL-filtered candidates.
package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/strokecovery/bites-engine/pkg/types"
)

const dbFile = "bites.db"

// Store manages the SQLite database holding the research knowledge base
// and the generated bites.
type Store struct {
	db         *sql.DB
	dimensions int
	maxResults int
}

// NewStore opens or creates the database at cfg.DataDir/bites.db and
// creates the schema if it does not exist.
func NewStore(cfg types.StoreConfig) (*Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	dbPath := filepath.Join(cfg.DataDir, dbFile)
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	s := &Store{
		db:         db,
		dimensions: cfg.Dimensions,
		maxResults: maxResults,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return s, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS papers (
			id TEXT PRIMARY KEY,
			fingerprint TEXT NOT NULL UNIQUE,
			filename TEXT,
			title TEXT,
			authors TEXT,
			year INTEGER,
			study_type TEXT,
			ingested_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sections (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			raw_text TEXT NOT NULL,
			order_index INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sections_paper_id ON sections(paper_id)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id TEXT PRIMARY KEY,
			paper_id TEXT NOT NULL REFERENCES papers(id) ON DELETE CASCADE,
			section_id TEXT REFERENCES sections(id) ON DELETE SET NULL,
			claim TEXT NOT NULL,
			evidence TEXT,
			quantitative_result TEXT,
			stroke_types TEXT NOT NULL DEFAULT '[]',
			recovery_phase TEXT,
			intervention TEXT,
			sample_size INTEGER,
			embedding TEXT,
			ingested_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_paper_id ON insights(paper_id)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_phase ON insights(recovery_phase)`,
		`CREATE TABLE IF NOT EXISTS bites (
			id TEXT PRIMARY KEY,
			patient_id TEXT NOT NULL,
			generated_date TEXT NOT NULL,
			cards TEXT NOT NULL,
			start_card_id TEXT NOT NULL,
			sequence_length INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			UNIQUE(patient_id, generated_date)
		)`,
		`CREATE TABLE IF NOT EXISTS bite_answers (
			id TEXT PRIMARY KEY,
			bite_id TEXT NOT NULL REFERENCES bites(id) ON DELETE CASCADE,
			patient_id TEXT NOT NULL,
			card_id TEXT NOT NULL,
			selected_key TEXT NOT NULL,
			question_text TEXT,
			selected_label TEXT,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_answers_patient ON bite_answers(patient_id, created_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}

	return nil
}

// PaperIDByFingerprint returns the id of the paper with the given
// content fingerprint, or "" when no such paper exists.
func (s *Store) PaperIDByFingerprint(ctx context.Context, fingerprint string) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM papers WHERE fingerprint = ?`, fingerprint,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("looking up fingerprint: %w", err)
	}
	return id, nil
}

// InsertPaper stores a paper with its sections in one transaction.
func (s *Store) InsertPaper(ctx context.Context, paper *types.Paper, sections []types.Section) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	authorsJSON, _ := json.Marshal(paper.Authors)
	_, err = tx.ExecContext(ctx,
		`INSERT INTO papers (id, fingerprint, filename, title, authors, year, study_type, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		paper.ID, paper.Fingerprint, paper.Filename, paper.Title,
		string(authorsJSON), paper.Year, string(paper.StudyType),
		paper.IngestedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting paper: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO sections (id, paper_id, name, raw_text, order_index) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing section insert: %w", err)
	}
	defer stmt.Close()

	for _, sec := range sections {
		if _, err := stmt.ExecContext(ctx, sec.ID, sec.PaperID, sec.Name, sec.RawText, sec.OrderIndex); err != nil {
			return fmt.Errorf("inserting section %s: %w", sec.Name, err)
		}
	}

	return tx.Commit()
}

// DeletePaper removes a paper and, through foreign keys, its sections
// and insights.
func (s *Store) DeletePaper(ctx context.Context, paperID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, paperID)
	if err != nil {
		return fmt.Errorf("deleting paper: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("paper %s not found", paperID)
	}
	return nil
}

// InsertInsights stores extracted insights. Insights carrying an
// embedding must match the store's configured dimension count.
func (s *Store) InsertInsights(ctx context.Context, insights []types.Insight) error {
	if len(insights) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO insights (id, paper_id, section_id, claim, evidence, quantitative_result,
			stroke_types, recovery_phase, intervention, sample_size, embedding, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insight insert: %w", err)
	}
	defer stmt.Close()

	for _, ins := range insights {
		embJSON, err := encodeEmbedding(ins.Embedding, s.dimensions)
		if err != nil {
			return fmt.Errorf("insight %s: %w", ins.ID, err)
		}
		typesJSON, _ := json.Marshal(ins.StrokeTypes)

		_, err = stmt.ExecContext(ctx,
			ins.ID, ins.PaperID, nullString(ins.SectionID), ins.Claim,
			nullString(ins.Evidence), nullString(ins.QuantitativeResult),
			string(typesJSON), nullString(string(ins.RecoveryPhase)),
			nullString(ins.Intervention), nullInt(ins.SampleSize), embJSON,
			ins.IngestedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting insight %s: %w", ins.ID, err)
		}
	}

	return tx.Commit()
}

// ListUnembedded returns insights that have no embedding yet, oldest
// first.
func (s *Store) ListUnembedded(ctx context.Context, limit int) ([]types.Insight, error) {
	if limit <= 0 {
		limit = s.maxResults
	}
	rows, err := s.db.QueryContext(ctx,
		insightColumns+` FROM insights WHERE embedding IS NULL ORDER BY ingested_at, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying unembedded insights: %w", err)
	}
	defer rows.Close()
	return scanInsights(rows)
}

// UpdateEmbedding sets the embedding vector for one insight.
func (s *Store) UpdateEmbedding(ctx context.Context, insightID string, vec []float32) error {
	embJSON, err := encodeEmbedding(vec, s.dimensions)
	if err != nil {
		return fmt.Errorf("insight %s: %w", insightID, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE insights SET embedding = ? WHERE id = ?`, embJSON, insightID)
	if err != nil {
		return fmt.Errorf("updating embedding: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("insight %s not found", insightID)
	}
	return nil
}

// Stats summarizes the contents of the knowledge base.
type Stats struct {
	Papers   int `json:"papers"`
	Sections int `json:"sections"`
	Insights int `json:"insights"`
	Embedded int `json:"embedded"`
	Bites    int `json:"bites"`
	Answers  int `json:"answers"`
}

// Stats counts rows across the main tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		query string
		dst   *int
	}{
		{`SELECT count(*) FROM papers`, &st.Papers},
		{`SELECT count(*) FROM sections`, &st.Sections},
		{`SELECT count(*) FROM insights`, &st.Insights},
		{`SELECT count(*) FROM insights WHERE embedding IS NOT NULL`, &st.Embedded},
		{`SELECT count(*) FROM bites`, &st.Bites},
		{`SELECT count(*) FROM bite_answers`, &st.Answers},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("counting rows: %w", err)
		}
	}
	return st, nil
}

// encodeEmbedding serializes a vector to JSON, enforcing the configured
// dimension count. A nil vector encodes as SQL NULL.
func encodeEmbedding(vec []float32, dims int) (any, error) {
	if vec == nil {
		return nil, nil
	}
	if dims > 0 && len(vec) != dims {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vec), dims)
	}
	data, err := json.Marshal(vec)
	if err != nil {
		return nil, fmt.Errorf("encoding embedding: %w", err)
	}
	return string(data), nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int) any {
	if n == 0 {
		return nil
	}
	return n
}
