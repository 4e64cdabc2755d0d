package bites

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/pkg/types"
)

// --- test helpers ---

type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = s.vec
	}
	return out, nil
}

func testService(t *testing.T, cfg types.GeneratorConfig) (*Service, *knowledge.Store) {
	t.Helper()
	store, err := knowledge.NewStore(types.StoreConfig{
		DataDir:    t.TempDir(),
		Dimensions: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	svc := NewService(store, &stubEmbedder{vec: []float32{1, 0, 0}}, cfg, nil)
	return svc, store
}

func seedInsights(t *testing.T, store *knowledge.Store, n int, strokeType string, phase types.RecoveryPhase) []types.Insight {
	t.Helper()
	ctx := context.Background()

	paper := &types.Paper{
		ID:          "paper-" + strokeType,
		Fingerprint: "fp-" + strokeType,
		IngestedAt:  time.Now(),
	}
	require.NoError(t, store.InsertPaper(ctx, paper, nil))

	insights := make([]types.Insight, n)
	for i := range insights {
		ins := types.Insight{
			ID:            fmt.Sprintf("%s-ins-%d", strokeType, i),
			PaperID:       paper.ID,
			Claim:         fmt.Sprintf("Finding %d about %s recovery.", i, strokeType),
			RecoveryPhase: phase,
			Embedding:     []float32{1, float32(i) * 0.01, 0},
			IngestedAt:    time.Now().Add(time.Duration(i) * time.Second),
		}
		if strokeType != "" {
			ins.StrokeTypes = []string{strokeType}
		}
		if i%2 == 0 {
			ins.QuantitativeResult = fmt.Sprintf("improvement of %d%%", 10+i)
		}
		insights[i] = ins
	}
	require.NoError(t, store.InsertInsights(ctx, insights))
	return insights
}

func profile(strokeType string, days int) types.PatientProfile {
	return types.PatientProfile{
		PatientID:       "pat-" + strokeType,
		StrokeType:      strokeType,
		DaysSinceStroke: days,
	}
}

// --- generation ---

func TestGetOrCreateBiteMemoized(t *testing.T) {
	svc, store := testService(t, types.GeneratorConfig{})
	seedInsights(t, store, 8, "ischemic", types.PhaseSubacute)
	ctx := context.Background()

	first, err := svc.GetOrCreateBite(ctx, profile("ischemic", 30), "2026-02-10")
	require.NoError(t, err)

	second, err := svc.GetOrCreateBite(ctx, profile("ischemic", 30), "2026-02-10")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Cards, second.Cards)
	assert.Equal(t, first.StartCardID, second.StartCardID)
}

func TestGetOrCreateBiteGraphShape(t *testing.T) {
	svc, store := testService(t, types.GeneratorConfig{SequenceLength: 6, QuestionInterval: 3})
	seedInsights(t, store, 8, "ischemic", types.PhaseSubacute)

	bite, err := svc.GetOrCreateBite(context.Background(), profile("ischemic", 30), "2026-02-10")
	require.NoError(t, err)
	require.NoError(t, bite.Validate())

	byKind := map[types.CardKind]int{}
	for _, c := range bite.Cards {
		byKind[c.Kind]++
	}
	assert.Equal(t, 1, byKind[types.CardWelcome])
	assert.Equal(t, 2, byKind[types.CardQuestion], "6 insights at interval 3 yield 2 questions")
	assert.Equal(t, 4, byKind[types.CardResponse])
	assert.Equal(t, 6, byKind[types.CardInfo]+byKind[types.CardStat]-1,
		"one content card per insight plus the closing card")

	// Question options branch to response cards that rejoin the deck.
	index := bite.CardIndex()
	for _, c := range bite.Cards {
		if c.Kind != types.CardQuestion {
			continue
		}
		require.Len(t, c.Options, 2)
		rejoin := map[string]bool{}
		for _, opt := range c.Options {
			resp := index[opt.NextCardID]
			require.NotNil(t, resp)
			assert.Equal(t, types.CardResponse, resp.Kind)
			assert.NotEmpty(t, resp.NextCardID, "branch must rejoin")
			rejoin[resp.NextCardID] = true
		}
		assert.Len(t, rejoin, 1, "both branches converge on the same card")
	}

	// Exactly one terminal card.
	var terminals int
	for _, c := range bite.Cards {
		if c.Kind != types.CardQuestion && c.NextCardID == "" {
			terminals++
		}
	}
	assert.Equal(t, 1, terminals)
}

func TestGetOrCreateBiteFallbackDeck(t *testing.T) {
	svc, _ := testService(t, types.GeneratorConfig{})

	bite, err := svc.GetOrCreateBite(context.Background(), profile("ischemic", 30), "2026-02-10")
	require.NoError(t, err)
	require.NoError(t, bite.Validate())

	assert.NotEmpty(t, bite.Cards, "empty knowledge base must still yield cards")
	assert.Equal(t, "f1", bite.StartCardID)
	for _, c := range bite.Cards {
		assert.Empty(t, c.SourceInsightID, "fallback cards carry no research facts")
		assert.NotEqual(t, types.CardQuestion, c.Kind)
	}
}

func TestGetOrCreateBiteFiltersByStrokeType(t *testing.T) {
	svc, store := testService(t, types.GeneratorConfig{})
	seedInsights(t, store, 4, "ischemic", types.PhaseSubacute)
	seedInsights(t, store, 4, "hemorrhagic", types.PhaseSubacute)
	ctx := context.Background()

	ischemicBite, err := svc.GetOrCreateBite(ctx, profile("ischemic", 30), "2026-02-10")
	require.NoError(t, err)
	hemorrhagicBite, err := svc.GetOrCreateBite(ctx, profile("hemorrhagic", 30), "2026-02-10")
	require.NoError(t, err)

	for _, c := range ischemicBite.Cards {
		if c.SourceInsightID != "" {
			assert.Contains(t, c.SourceInsightID, "ischemic-")
		}
	}
	for _, c := range hemorrhagicBite.Cards {
		if c.SourceInsightID != "" {
			assert.Contains(t, c.SourceInsightID, "hemorrhagic-")
		}
	}
}

func TestGetOrCreateBiteExcludesRecentlySeen(t *testing.T) {
	svc, store := testService(t, types.GeneratorConfig{SequenceLength: 2, CandidateLimit: 10})
	seedInsights(t, store, 6, "ischemic", types.PhaseSubacute)
	ctx := context.Background()
	p := profile("ischemic", 30)

	day1, err := svc.GetOrCreateBite(ctx, p, "2026-02-10")
	require.NoError(t, err)
	day2, err := svc.GetOrCreateBite(ctx, p, "2026-02-11")
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, c := range day1.Cards {
		if c.SourceInsightID != "" {
			seen[c.SourceInsightID] = true
		}
	}
	require.NotEmpty(t, seen)
	for _, c := range day2.Cards {
		if c.SourceInsightID != "" {
			assert.False(t, seen[c.SourceInsightID], "insight %s repeated within the seen window", c.SourceInsightID)
		}
	}
}

func TestGetOrCreateBiteAllSeenFallsBackToCandidates(t *testing.T) {
	// With only 2 insights and sequence length 2, day two has seen
	// everything; exclusion must not empty the deck.
	svc, store := testService(t, types.GeneratorConfig{SequenceLength: 2, CandidateLimit: 10})
	seedInsights(t, store, 2, "ischemic", types.PhaseSubacute)
	ctx := context.Background()
	p := profile("ischemic", 30)

	_, err := svc.GetOrCreateBite(ctx, p, "2026-02-10")
	require.NoError(t, err)

	day2, err := svc.GetOrCreateBite(ctx, p, "2026-02-11")
	require.NoError(t, err)

	var sourced int
	for _, c := range day2.Cards {
		if c.SourceInsightID != "" {
			sourced++
		}
	}
	assert.Equal(t, 2, sourced, "seen exclusion should fall back to the full candidate set")
}

func TestGetOrCreateBiteEmbedderFailureDegrades(t *testing.T) {
	store, err := knowledge.NewStore(types.StoreConfig{DataDir: t.TempDir(), Dimensions: 3})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	seedInsights(t, store, 4, "ischemic", types.PhaseSubacute)

	svc := NewService(store, &stubEmbedder{err: fmt.Errorf("provider down")}, types.GeneratorConfig{}, nil)

	bite, err := svc.GetOrCreateBite(context.Background(), profile("ischemic", 30), "2026-02-10")
	require.NoError(t, err)
	require.NoError(t, bite.Validate())

	var sourced int
	for _, c := range bite.Cards {
		if c.SourceInsightID != "" {
			sourced++
		}
	}
	assert.Greater(t, sourced, 0, "recency-ordered retrieval still fills the deck")
}

func TestGetOrCreateBitePhaseBucketing(t *testing.T) {
	svc, store := testService(t, types.GeneratorConfig{})
	seedInsights(t, store, 4, "ischemic", types.PhaseAcute)
	ctx := context.Background()

	// Day 6 is acute, so acute insights apply.
	bite, err := svc.GetOrCreateBite(ctx, profile("ischemic", 6), "2026-02-10")
	require.NoError(t, err)
	var sourced int
	for _, c := range bite.Cards {
		if c.SourceInsightID != "" {
			sourced++
		}
	}
	assert.Greater(t, sourced, 0)

	// Day 7 is subacute; acute-tagged insights are filtered out and the
	// fallback deck kicks in.
	p := profile("ischemic", 7)
	p.PatientID = "pat-subacute"
	bite, err = svc.GetOrCreateBite(ctx, p, "2026-02-10")
	require.NoError(t, err)
	assert.Equal(t, "f1", bite.StartCardID)
}
