// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// insightColumns is the shared SELECT list for insight scans.
const insightColumns = `SELECT id, paper_id, section_id, claim, evidence, quantitative_result,
	stroke_types, recovery_phase, intervention, sample_size, embedding, ingested_at`

// Filters narrows a similarity search to insights matching the patient's
// situation.
type Filters struct {
	// StrokeTypes keeps insights tagged with at least one of these
	// types, plus untagged (general) insights.
	StrokeTypes []string

	// RecoveryPhase keeps insights tagged with this phase, plus
	// insights with no phase.
	RecoveryPhase types.RecoveryPhase
}

// ScoredInsight pairs an insight with its cosine similarity to the
// query vector.
type ScoredInsight struct {
	types.Insight
	Score float64 `json:"score"`
}

// SearchInsights returns the topK embedded insights most similar to the
// query vector, after applying filters in SQL. Filter matching treats
// untagged insights as applicable to everyone. When query is nil the
// filtered insights come back scored zero, newest first.
func (s *Store) SearchInsights(ctx context.Context, query []float32, topK int, f Filters) ([]ScoredInsight, error) {
	if topK <= 0 {
		topK = s.maxResults
	}

	var (
		qb   strings.Builder
		args []any
	)
	qb.WriteString(insightColumns)
	qb.WriteString(` FROM insights WHERE embedding IS NOT NULL`)

	if f.RecoveryPhase != "" {
		qb.WriteString(` AND (recovery_phase IS NULL OR recovery_phase = ?)`)
		args = append(args, string(f.RecoveryPhase))
	}

	if len(f.StrokeTypes) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.StrokeTypes)), ",")
		qb.WriteString(` AND (stroke_types = '[]' OR EXISTS (
			SELECT 1 FROM json_each(insights.stroke_types) WHERE value IN (` + placeholders + `)))`)
		for _, st := range f.StrokeTypes {
			args = append(args, st)
		}
	}

	rows, err := s.db.QueryContext(ctx, qb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("querying insights: %w", err)
	}
	defer rows.Close()

	candidates, err := scanInsights(rows)
	if err != nil {
		return nil, err
	}

	scored := make([]ScoredInsight, 0, len(candidates))
	for _, ins := range candidates {
		var score float64
		if query != nil {
			score = cosine(query, ins.Embedding)
		}
		scored = append(scored, ScoredInsight{Insight: ins, Score: score})
	}

	// Rank by similarity, breaking ties by recency then id for a
	// deterministic order.
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].IngestedAt.Equal(scored[j].IngestedAt) {
			return scored[i].IngestedAt.After(scored[j].IngestedAt)
		}
		return scored[i].ID < scored[j].ID
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

// cosine computes cosine similarity between two vectors. Mismatched or
// zero-magnitude vectors score zero.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func scanInsights(rows *sql.Rows) ([]types.Insight, error) {
	var insights []types.Insight
	for rows.Next() {
		var (
			ins        types.Insight
			sectionID  sql.NullString
			evidence   sql.NullString
			quantRes   sql.NullString
			typesJSON  string
			phase      sql.NullString
			interv     sql.NullString
			sampleSize sql.NullInt64
			embJSON    sql.NullString
			ingestedAt string
		)

		if err := rows.Scan(
			&ins.ID, &ins.PaperID, &sectionID, &ins.Claim, &evidence, &quantRes,
			&typesJSON, &phase, &interv, &sampleSize, &embJSON, &ingestedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning insight: %w", err)
		}

		ins.SectionID = sectionID.String
		ins.Evidence = evidence.String
		ins.QuantitativeResult = quantRes.String
		ins.RecoveryPhase = types.RecoveryPhase(phase.String)
		ins.Intervention = interv.String
		ins.SampleSize = int(sampleSize.Int64)

		if err := json.Unmarshal([]byte(typesJSON), &ins.StrokeTypes); err != nil {
			return nil, fmt.Errorf("decoding stroke types for %s: %w", ins.ID, err)
		}
		if embJSON.Valid {
			if err := json.Unmarshal([]byte(embJSON.String), &ins.Embedding); err != nil {
				return nil, fmt.Errorf("decoding embedding for %s: %w", ins.ID, err)
			}
		}

		t, err := parseStoredTime(ingestedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing ingested_at for %s: %w", ins.ID, err)
		}
		ins.IngestedAt = t

		insights = append(insights, ins)
	}
	return insights, rows.Err()
}
