// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// StudyType classifies the study design of an ingested paper.
type StudyType string

const (
	StudyRCT          StudyType = "rct"
	StudyMetaAnalysis StudyType = "meta-analysis"
	StudyCohort       StudyType = "cohort"
	StudyCaseStudy    StudyType = "case-study"
	StudyReview       StudyType = "review"
)

// Paper holds metadata for an ingested research document.
type Paper struct {
	// ID is the stable row identifier assigned at ingestion.
	ID string `json:"id" yaml:"id"`

	// Fingerprint is the SHA-256 hex digest of the raw document bytes.
	// Unique across the store; re-ingesting identical bytes is a no-op.
	Fingerprint string `json:"fingerprint" yaml:"fingerprint"`

	// Filename is the source file name as submitted.
	Filename string `json:"filename" yaml:"filename"`

	// Title is the paper title, if one could be detected.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty" yaml:"authors,omitempty"`

	// Year is the publication year, zero when unknown.
	Year int `json:"year,omitempty" yaml:"year,omitempty"`

	// StudyType classifies the study design, empty when unknown.
	StudyType StudyType `json:"study_type,omitempty" yaml:"study_type,omitempty"`

	// IngestedAt records when the paper entered the store.
	IngestedAt time.Time `json:"ingested_at" yaml:"ingested_at"`
}

// Section is one named, ordered slice of a parsed paper. Sections are
// immutable and owned by their paper.
type Section struct {
	// ID is the stable row identifier assigned at ingestion.
	ID string `json:"id" yaml:"id"`

	// PaperID links the section to its owning paper.
	PaperID string `json:"paper_id" yaml:"paper_id"`

	// Name is the normalized section name (e.g. "methods", "results",
	// or "body" when no header matched).
	Name string `json:"name" yaml:"name"`

	// RawText is the section text as extracted from the document.
	RawText string `json:"raw_text" yaml:"raw_text"`

	// OrderIndex is the section's position within the paper, from zero.
	OrderIndex int `json:"order_index" yaml:"order_index"`
}
