// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RecoveryPhase buckets time since the stroke event.
type RecoveryPhase string

const (
	PhaseAcute    RecoveryPhase = "acute"
	PhaseSubacute RecoveryPhase = "subacute"
	PhaseChronic  RecoveryPhase = "chronic"
)

// ValidPhase reports whether p is one of the three known phases.
func ValidPhase(p RecoveryPhase) bool {
	return p == PhaseAcute || p == PhaseSubacute || p == PhaseChronic
}

// PhaseForDays buckets days since the stroke event: under 7 days is acute,
// 7 through 179 is subacute, 180 and beyond is chronic.
func PhaseForDays(days int) RecoveryPhase {
	switch {
	case days < 7:
		return PhaseAcute
	case days < 180:
		return PhaseSubacute
	default:
		return PhaseChronic
	}
}

// StrokeTypes is the known stroke-type vocabulary. Extracted values outside
// this set are discarded.
var StrokeTypes = []string{"ischemic", "hemorrhagic", "tbi"}

// KnownStrokeType reports whether t is in the stroke-type vocabulary.
func KnownStrokeType(t string) bool {
	for _, known := range StrokeTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Insight is a structured, evidence-backed claim extracted from one paper
// section. Insights are immutable once stored; correcting one means deleting
// and re-ingesting the owning paper.
type Insight struct {
	// ID is the stable row identifier assigned at ingestion.
	ID string `json:"id" yaml:"id"`

	// PaperID links the insight to its owning paper.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// SectionID links the insight to the section it was extracted from.
	SectionID string `json:"section_id" yaml:"section_id"`

	// Claim is the main finding, always present.
	Claim string `json:"claim" yaml:"claim"`

	// Evidence is the supporting methodology or data, if mentioned.
	Evidence string `json:"evidence,omitempty" yaml:"evidence,omitempty"`

	// QuantitativeResult holds specific numbers, percentages, or p-values.
	QuantitativeResult string `json:"quantitative_result,omitempty" yaml:"quantitative_result,omitempty"`

	// StrokeTypes lists the stroke types the claim applies to. Empty means
	// the claim is general.
	StrokeTypes []string `json:"stroke_types,omitempty" yaml:"stroke_types,omitempty"`

	// RecoveryPhase is the phase the claim applies to, empty when unspecified.
	RecoveryPhase RecoveryPhase `json:"recovery_phase,omitempty" yaml:"recovery_phase,omitempty"`

	// Intervention is the treatment or therapy discussed, if any.
	Intervention string `json:"intervention,omitempty" yaml:"intervention,omitempty"`

	// SampleSize is the number of participants, zero when not mentioned.
	SampleSize int `json:"sample_size,omitempty" yaml:"sample_size,omitempty"`

	// Embedding is the claim's vector representation. Nil when embedding
	// failed at ingestion; such insights are invisible to similarity search
	// until a backfill pass fills them in.
	Embedding []float32 `json:"embedding,omitempty" yaml:"embedding,omitempty"`

	// IngestedAt records when the insight entered the store.
	IngestedAt time.Time `json:"ingested_at" yaml:"ingested_at"`
}
