// Package extract identifies structured insights within parsed paper
// sections. One structured-extraction request is made per section; a
// response that fails schema validation is retried once with a stricter
// instruction, and a second failure drops that section's extraction
// without failing the document.
package extract

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// ErrBadResponse marks a model response that failed schema validation on
// both the normal and the strict attempt.
var ErrBadResponse = errors.New("unparseable extraction response")

// skipSections never yield insights and are skipped without an API call.
var skipSections = map[string]bool{
	"references":      true,
	"acknowledgments": true,
}

// AIBackend abstracts the Generative AI API so tests can supply a mock.
// When strict is true the backend appends a stricter output instruction to
// the prompt.
type AIBackend interface {
	Extract(ctx context.Context, sectionName, text string, strict bool) (AIResponse, error)
}

// AIResponse is the structured response from the AI backend for one section.
type AIResponse struct {
	Insights []AIInsight `json:"insights"`
}

// AIInsight is a single insight as returned by the AI backend. All fields
// except claim are optional.
type AIInsight struct {
	Claim              string   `json:"claim"`
	Evidence           *string  `json:"evidence"`
	QuantitativeResult *string  `json:"quantitative_result"`
	StrokeTypes        []string `json:"stroke_types"`
	RecoveryPhase      *string  `json:"recovery_phase"`
	Intervention       *string  `json:"intervention"`
	SampleSize         *int     `json:"sample_size"`
}

// backoffBase controls the base duration for exponential backoff on
// transport errors. Tests override this to avoid real sleeps.
var backoffBase = time.Second

// ExtractSection runs one structured-extraction request for a section and
// converts the response into insights. Sections below the configured
// minimum length and sections in the skip list return no insights and no
// error. Transport errors are retried with backoff up to cfg.MaxRetries;
// validation failures get one strict retry before the section degrades to
// ErrBadResponse.
func ExtractSection(ctx context.Context, backend AIBackend, sec types.Section, cfg types.ExtractionConfig) ([]types.Insight, error) {
	minChars := cfg.MinSectionChars
	if minChars <= 0 {
		minChars = 100
	}
	if skipSections[sec.Name] || len(sec.RawText) < minChars {
		return nil, nil
	}

	resp, err := callWithRetry(ctx, backend, sec, false, cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("extracting section %q: %w", sec.Name, err)
	}

	insights, problems := convertInsights(resp.Insights, sec)
	if len(problems) == 0 {
		return insights, nil
	}

	// One strict retry, then degrade.
	resp, err = callWithRetry(ctx, backend, sec, true, cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("extracting section %q (strict): %w", sec.Name, err)
	}
	insights, problems = convertInsights(resp.Insights, sec)
	if len(problems) > 0 {
		return nil, fmt.Errorf("section %q: %w: %s", sec.Name, ErrBadResponse, strings.Join(problems, "; "))
	}
	return insights, nil
}

// callWithRetry calls the AI backend with exponential backoff on transport
// errors.
func callWithRetry(ctx context.Context, backend AIBackend, sec types.Section, strict bool, maxRetries int) (AIResponse, error) {
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * backoffBase
			select {
			case <-ctx.Done():
				return AIResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := backend.Extract(ctx, sec.Name, sec.RawText, strict)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return AIResponse{}, fmt.Errorf("after %d retries: %w", maxRetries, lastErr)
}

// convertInsights validates AI response items and converts them to
// Insights. Field semantics: claim required; sample_size must be positive
// when present; recovery_phase must be one of the three phases when
// present; stroke_types is intersected with the known vocabulary.
func convertInsights(items []AIInsight, sec types.Section) ([]types.Insight, []string) {
	var result []types.Insight
	var problems []string

	for i, item := range items {
		if strings.TrimSpace(item.Claim) == "" {
			problems = append(problems, fmt.Sprintf("insight %d: empty claim", i))
			continue
		}

		ins := types.Insight{
			SectionID: sec.ID,
			PaperID:   sec.PaperID,
			Claim:     strings.TrimSpace(item.Claim),
		}

		if item.Evidence != nil {
			ins.Evidence = strings.TrimSpace(*item.Evidence)
		}
		if item.QuantitativeResult != nil {
			ins.QuantitativeResult = strings.TrimSpace(*item.QuantitativeResult)
		}
		if item.Intervention != nil {
			ins.Intervention = strings.TrimSpace(*item.Intervention)
		}

		if item.SampleSize != nil {
			if *item.SampleSize <= 0 {
				problems = append(problems, fmt.Sprintf("insight %d: sample_size %d not positive", i, *item.SampleSize))
				continue
			}
			ins.SampleSize = *item.SampleSize
		}

		if item.RecoveryPhase != nil && *item.RecoveryPhase != "" {
			phase := types.RecoveryPhase(strings.ToLower(*item.RecoveryPhase))
			if !types.ValidPhase(phase) {
				problems = append(problems, fmt.Sprintf("insight %d: unknown recovery_phase %q", i, *item.RecoveryPhase))
				continue
			}
			ins.RecoveryPhase = phase
		}

		for _, st := range item.StrokeTypes {
			st = strings.ToLower(strings.TrimSpace(st))
			if types.KnownStrokeType(st) {
				ins.StrokeTypes = append(ins.StrokeTypes, st)
			}
		}

		result = append(result, ins)
	}

	return result, problems
}
