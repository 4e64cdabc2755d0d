// Package embed turns extracted insights into dense vectors for
// similarity search. The embedded text is composed from the claim plus
// whichever supporting fields the insight carries, so semantically
// similar findings land near each other even when worded differently.
package embed

import (
	"context"
	"fmt"
	"strings"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// Backend produces one embedding vector per input string, in input order.
type Backend interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// ComposeText builds the string that gets embedded for an insight. The
// claim always leads; evidence, quantitative results, and the
// intervention are appended when present.
func ComposeText(ins types.Insight) string {
	parts := []string{ins.Claim}
	if ins.Evidence != "" {
		parts = append(parts, "Evidence: "+ins.Evidence)
	}
	if ins.QuantitativeResult != "" {
		parts = append(parts, "Results: "+ins.QuantitativeResult)
	}
	if ins.Intervention != "" {
		parts = append(parts, "Intervention: "+ins.Intervention)
	}
	return strings.Join(parts, " ")
}

// EmbedInsights fills in the Embedding field of each insight in place.
// Vectors come back in input order, so insights[i] gets vector i. Every
// vector must have the expected dimension count when dims is positive.
func EmbedInsights(ctx context.Context, backend Backend, insights []types.Insight, dims int) error {
	if len(insights) == 0 {
		return nil
	}

	inputs := make([]string, len(insights))
	for i, ins := range insights {
		inputs[i] = ComposeText(ins)
	}

	vectors, err := backend.Embed(ctx, inputs)
	if err != nil {
		return fmt.Errorf("embedding %d insights: %w", len(insights), err)
	}
	if len(vectors) != len(insights) {
		return fmt.Errorf("embedding count mismatch: got %d vectors for %d insights", len(vectors), len(insights))
	}

	for i, vec := range vectors {
		if dims > 0 && len(vec) != dims {
			return fmt.Errorf("insight %d: embedding has %d dimensions, want %d", i, len(vec), dims)
		}
		insights[i].Embedding = vec
	}
	return nil
}
