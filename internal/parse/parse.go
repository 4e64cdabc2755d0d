// Package parse turns raw document bytes into paper metadata and ordered
// sections. Parsing never fails on missing structure: text that matches no
// known header folds into the preceding section, or into a default "body"
// section when nothing has matched yet.
package parse

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// ErrNoText marks a document from which no text could be extracted.
var ErrNoText = errors.New("no extractable text")

// canonicalSections is the header vocabulary. Matching is case-insensitive
// and tolerant of numbering prefixes ("2.1 Methods").
var canonicalSections = []string{
	"abstract",
	"introduction",
	"background",
	"methods",
	"results",
	"discussion",
	"conclusion",
	"references",
	"acknowledgments",
}

// sectionSynonyms maps header variants to canonical names.
var sectionSynonyms = map[string]string{
	"material and methods":  "methods",
	"materials and methods": "methods",
	"methodology":           "methods",
	"experimental":          "methods",
	"experimental design":   "methods",
	"study design":          "methods",
	"findings":              "results",
	"outcomes":              "results",
	"conclusions":           "conclusion",
	"summary":               "conclusion",
	"concluding remarks":    "conclusion",
	"literature review":     "background",
	"related work":          "background",
	"prior work":            "background",
	"acknowledgements":      "acknowledgments",
}

// numberPrefix strips leading heading numbers such as "2." or "3.1.".
var numberPrefix = regexp.MustCompile(`^\d+(\.\d+)*\.?\s*`)

const maxHeaderLen = 60

// Fingerprint returns the SHA-256 hex digest of the raw document bytes.
func Fingerprint(raw []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(raw))
}

// Parse extracts linear text from raw bytes and splits it into named,
// ordered sections. It returns the paper metadata (fingerprint, filename,
// title heuristic) and the sections, or ErrNoText when the document holds
// no usable text. Paper and section ids are assigned later, at storage.
func Parse(raw []byte, filename string) (*types.Paper, []types.Section, error) {
	text := extractText(raw)
	if strings.TrimSpace(text) == "" {
		return nil, nil, fmt.Errorf("parsing %s: %w", filename, ErrNoText)
	}

	paper := &types.Paper{
		Fingerprint: Fingerprint(raw),
		Filename:    filename,
		Title:       detectTitle(text),
	}

	return paper, splitSections(text), nil
}

// extractText returns the document's linear text. Invalid UTF-8 bytes are
// dropped so downstream prompt and storage layers always see clean text.
func extractText(raw []byte) string {
	if utf8.Valid(raw) {
		return strings.ReplaceAll(string(raw), "\r\n", "\n")
	}
	var b strings.Builder
	b.Grow(len(raw))
	for len(raw) > 0 {
		r, size := utf8.DecodeRune(raw)
		if r != utf8.RuneError || size > 1 {
			b.WriteRune(r)
		}
		raw = raw[size:]
	}
	return strings.ReplaceAll(b.String(), "\r\n", "\n")
}

// normalizeHeader lowercases a candidate header line, strips numbering and
// trailing punctuation, and resolves synonyms. It returns the canonical
// section name and whether the line is a recognized header.
func normalizeHeader(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || len(trimmed) > maxHeaderLen {
		return "", false
	}

	name := strings.ToLower(trimmed)
	name = numberPrefix.ReplaceAllString(name, "")
	name = strings.TrimRight(name, ":. ")
	if name == "" {
		return "", false
	}

	if canonical, ok := sectionSynonyms[name]; ok {
		return canonical, true
	}
	for _, canonical := range canonicalSections {
		if name == canonical {
			return canonical, true
		}
	}
	return "", false
}

// splitSections scans lines for section headers and groups the text under
// them. Text before the first header becomes a "body" section.
func splitSections(text string) []types.Section {
	lines := strings.Split(text, "\n")

	var sections []types.Section
	currentName := ""
	var bodyLines []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(bodyLines, "\n"))
		bodyLines = nil
		if body == "" {
			return
		}
		name := currentName
		if name == "" {
			name = "body"
		}
		sections = append(sections, types.Section{
			Name:       name,
			RawText:    body,
			OrderIndex: len(sections),
		})
	}

	for _, line := range lines {
		if name, ok := normalizeHeader(line); ok {
			flush()
			currentName = name
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	flush()

	return sections
}

// detectTitle applies a first-plausible-line heuristic: a line of 20-200
// characters near the top that is not all caps and not a URL.
func detectTitle(text string) string {
	lines := strings.Split(text, "\n")
	limit := 20
	if len(lines) < limit {
		limit = len(lines)
	}
	for _, line := range lines[:limit] {
		line = strings.TrimSpace(line)
		if len(line) < 20 || len(line) > 200 {
			continue
		}
		if line == strings.ToUpper(line) || strings.HasPrefix(line, "http") {
			continue
		}
		return line
	}
	return ""
}
