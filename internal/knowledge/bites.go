// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// ErrNotGenerated marks a bite lookup for a patient and date with no
// stored bite.
var ErrNotGenerated = errors.New("bite not generated")

// GetBite returns the stored bite for a patient and date. Missing bites
// return ErrNotGenerated.
func (s *Store) GetBite(ctx context.Context, patientID, date string) (*types.Bite, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, patient_id, generated_date, cards, start_card_id, sequence_length, created_at
		 FROM bites WHERE patient_id = ? AND generated_date = ?`, patientID, date)
	bite, err := scanBite(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("patient %s on %s: %w", patientID, date, ErrNotGenerated)
	}
	if err != nil {
		return nil, fmt.Errorf("loading bite: %w", err)
	}
	return bite, nil
}

// InsertBite stores a bite. A (patient, date) collision means another
// writer generated the bite concurrently; the stored bite wins and is
// returned so all callers see one deck per patient per day.
func (s *Store) InsertBite(ctx context.Context, bite *types.Bite) (*types.Bite, error) {
	cardsJSON, err := json.Marshal(bite.Cards)
	if err != nil {
		return nil, fmt.Errorf("encoding cards: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO bites (id, patient_id, generated_date, cards, start_card_id, sequence_length, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		bite.ID, bite.PatientID, bite.GeneratedDate, string(cardsJSON),
		bite.StartCardID, bite.SequenceLength,
		bite.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err == nil {
		return bite, nil
	}

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return s.GetBite(ctx, bite.PatientID, bite.GeneratedDate)
	}
	return nil, fmt.Errorf("inserting bite: %w", err)
}

// SeenInsightIDs returns the ids of insights that appeared in the
// patient's bites generated within the last `days` days, including
// today.
func (s *Store) SeenInsightIDs(ctx context.Context, patientID string, days int) (map[string]bool, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02")
	rows, err := s.db.QueryContext(ctx,
		`SELECT cards FROM bites WHERE patient_id = ? AND generated_date >= ?`,
		patientID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying recent bites: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	for rows.Next() {
		var cardsJSON string
		if err := rows.Scan(&cardsJSON); err != nil {
			return nil, fmt.Errorf("scanning bite cards: %w", err)
		}
		var cards []types.Card
		if err := json.Unmarshal([]byte(cardsJSON), &cards); err != nil {
			return nil, fmt.Errorf("decoding bite cards: %w", err)
		}
		for _, card := range cards {
			if card.SourceInsightID != "" {
				seen[card.SourceInsightID] = true
			}
		}
	}
	return seen, rows.Err()
}

// InsertAnswers stores question answers for a bite. Every answer must
// reference the given bite, and the bite must belong to the answering
// patient.
func (s *Store) InsertAnswers(ctx context.Context, biteID, patientID string, answers []types.Answer) error {
	if len(answers) == 0 {
		return nil
	}

	var owner string
	err := s.db.QueryRowContext(ctx,
		`SELECT patient_id FROM bites WHERE id = ?`, biteID).Scan(&owner)
	if err == sql.ErrNoRows {
		return fmt.Errorf("bite %s not found", biteID)
	}
	if err != nil {
		return fmt.Errorf("looking up bite: %w", err)
	}
	if owner != patientID {
		return fmt.Errorf("bite %s does not belong to patient %s", biteID, patientID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO bite_answers (id, bite_id, patient_id, card_id, selected_key, question_text, selected_label, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing answer insert: %w", err)
	}
	defer stmt.Close()

	for _, ans := range answers {
		createdAt := ans.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		_, err := stmt.ExecContext(ctx,
			ans.ID, biteID, patientID, ans.CardID, ans.SelectedKey,
			nullString(ans.QuestionText), nullString(ans.SelectedLabel),
			createdAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("inserting answer for card %s: %w", ans.CardID, err)
		}
	}

	return tx.Commit()
}

// RecentAnswers returns the patient's answers from the last `days`
// days, newest first.
func (s *Store) RecentAnswers(ctx context.Context, patientID string, days int) ([]types.Answer, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, bite_id, patient_id, card_id, selected_key, question_text, selected_label, created_at
		 FROM bite_answers WHERE patient_id = ? AND created_at >= ?
		 ORDER BY created_at DESC, id`, patientID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("querying answers: %w", err)
	}
	defer rows.Close()

	var answers []types.Answer
	for rows.Next() {
		var (
			ans       types.Answer
			question  sql.NullString
			label     sql.NullString
			createdAt string
		)
		if err := rows.Scan(&ans.ID, &ans.BiteID, &ans.PatientID, &ans.CardID,
			&ans.SelectedKey, &question, &label, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning answer: %w", err)
		}
		ans.QuestionText = question.String
		ans.SelectedLabel = label.String
		t, err := parseStoredTime(createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", ans.ID, err)
		}
		ans.CreatedAt = t
		answers = append(answers, ans)
	}
	return answers, rows.Err()
}

func scanBite(row *sql.Row) (*types.Bite, error) {
	var (
		bite      types.Bite
		cardsJSON string
		createdAt string
	)
	if err := row.Scan(&bite.ID, &bite.PatientID, &bite.GeneratedDate,
		&cardsJSON, &bite.StartCardID, &bite.SequenceLength, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(cardsJSON), &bite.Cards); err != nil {
		return nil, fmt.Errorf("decoding cards: %w", err)
	}
	t, err := parseStoredTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	bite.CreatedAt = t
	return &bite, nil
}

func parseStoredTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
