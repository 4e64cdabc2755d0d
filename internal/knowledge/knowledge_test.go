package knowledge

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/strokecovery/bites-engine/pkg/types"
)

// --- test helpers ---

func testSetup(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(types.StoreConfig{
		DataDir:    t.TempDir(),
		Dimensions: 3,
		MaxResults: 20,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func insertPaper(t *testing.T, store *Store, id string) {
	t.Helper()
	paper := &types.Paper{
		ID:          id,
		Fingerprint: "fp-" + id,
		Filename:    id + ".txt",
		Title:       "Paper " + id,
		Authors:     []string{"Smith J", "Lee K"},
		Year:        2024,
		StudyType:   types.StudyRCT,
		IngestedAt:  time.Now(),
	}
	sections := []types.Section{
		{ID: id + "-s1", PaperID: id, Name: "abstract", RawText: "abstract text", OrderIndex: 0},
		{ID: id + "-s2", PaperID: id, Name: "results", RawText: "results text", OrderIndex: 1},
	}
	if err := store.InsertPaper(context.Background(), paper, sections); err != nil {
		t.Fatal(err)
	}
}

func testInsight(id, paperID string, emb []float32) types.Insight {
	return types.Insight{
		ID:         id,
		PaperID:    paperID,
		SectionID:  paperID + "-s2",
		Claim:      "claim " + id,
		Embedding:  emb,
		IngestedAt: time.Now(),
	}
}

func testBite(id, patientID, date string) *types.Bite {
	return &types.Bite{
		ID:            id,
		PatientID:     patientID,
		GeneratedDate: date,
		Cards: []types.Card{
			{ID: "c1", Kind: types.CardWelcome, Title: "Hello", NextCardID: "c2"},
			{ID: "c2", Kind: types.CardInfo, Body: "fact", SourceInsightID: "ins-" + id},
		},
		StartCardID:    "c1",
		SequenceLength: 2,
		CreatedAt:      time.Now(),
	}
}

// --- papers ---

func TestInsertPaperAndFingerprint(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")

	id, err := store.PaperIDByFingerprint(ctx, "fp-p1")
	if err != nil {
		t.Fatal(err)
	}
	if id != "p1" {
		t.Fatalf("id = %q, want p1", id)
	}

	id, err = store.PaperIDByFingerprint(ctx, "fp-unknown")
	if err != nil {
		t.Fatal(err)
	}
	if id != "" {
		t.Fatalf("unknown fingerprint returned %q", id)
	}
}

func TestInsertPaperDuplicateFingerprint(t *testing.T) {
	store := testSetup(t)
	insertPaper(t, store, "p1")

	dup := &types.Paper{ID: "p2", Fingerprint: "fp-p1", IngestedAt: time.Now()}
	if err := store.InsertPaper(context.Background(), dup, nil); err == nil {
		t.Fatal("duplicate fingerprint should fail")
	}
}

func TestDeletePaperCascades(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")
	if err := store.InsertInsights(ctx, []types.Insight{testInsight("i1", "p1", nil)}); err != nil {
		t.Fatal(err)
	}

	if err := store.DeletePaper(ctx, "p1"); err != nil {
		t.Fatal(err)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Papers != 0 || st.Sections != 0 || st.Insights != 0 {
		t.Fatalf("cascade left rows behind: %+v", st)
	}

	if err := store.DeletePaper(ctx, "p1"); err == nil {
		t.Fatal("deleting a missing paper should fail")
	}
}

// --- insights and embeddings ---

func TestInsertInsightsDimensionCheck(t *testing.T) {
	store := testSetup(t)
	insertPaper(t, store, "p1")

	bad := testInsight("i1", "p1", []float32{1, 2})
	err := store.InsertInsights(context.Background(), []types.Insight{bad})
	if err == nil {
		t.Fatal("wrong-dimension embedding should fail")
	}
}

func TestListUnembeddedAndUpdateEmbedding(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")

	insights := []types.Insight{
		testInsight("i1", "p1", nil),
		testInsight("i2", "p1", []float32{1, 0, 0}),
	}
	if err := store.InsertInsights(ctx, insights); err != nil {
		t.Fatal(err)
	}

	pending, err := store.ListUnembedded(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != "i1" {
		t.Fatalf("pending = %+v", pending)
	}

	if err := store.UpdateEmbedding(ctx, "i1", []float32{0, 1, 0}); err != nil {
		t.Fatal(err)
	}

	pending, err = store.ListUnembedded(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Fatalf("still pending after update: %+v", pending)
	}

	if err := store.UpdateEmbedding(ctx, "missing", []float32{0, 0, 1}); err == nil {
		t.Fatal("updating a missing insight should fail")
	}
}

// --- similarity search ---

func TestSearchInsightsRanksBySimilarity(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")

	insights := []types.Insight{
		testInsight("near", "p1", []float32{1, 0, 0}),
		testInsight("far", "p1", []float32{0, 1, 0}),
		testInsight("mid", "p1", []float32{1, 1, 0}),
	}
	if err := store.InsertInsights(ctx, insights); err != nil {
		t.Fatal(err)
	}

	results, err := store.SearchInsights(ctx, []float32{1, 0, 0}, 2, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].ID != "near" || results[1].ID != "mid" {
		t.Fatalf("order = %s, %s", results[0].ID, results[1].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("scores not descending: %f, %f", results[0].Score, results[1].Score)
	}
}

func TestSearchInsightsFilters(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")

	ischemic := testInsight("isch", "p1", []float32{1, 0, 0})
	ischemic.StrokeTypes = []string{"ischemic"}
	ischemic.RecoveryPhase = types.PhaseAcute

	hemorrhagic := testInsight("hem", "p1", []float32{1, 0, 0})
	hemorrhagic.StrokeTypes = []string{"hemorrhagic"}

	general := testInsight("gen", "p1", []float32{1, 0, 0})

	if err := store.InsertInsights(ctx, []types.Insight{ischemic, hemorrhagic, general}); err != nil {
		t.Fatal(err)
	}

	results, err := store.SearchInsights(ctx, []float32{1, 0, 0}, 10, Filters{
		StrokeTypes: []string{"ischemic"},
	})
	if err != nil {
		t.Fatal(err)
	}
	ids := resultIDs(results)
	if len(ids) != 2 || !ids["isch"] || !ids["gen"] {
		t.Fatalf("stroke-type filter returned %v", ids)
	}

	results, err = store.SearchInsights(ctx, []float32{1, 0, 0}, 10, Filters{
		RecoveryPhase: types.PhaseChronic,
	})
	if err != nil {
		t.Fatal(err)
	}
	ids = resultIDs(results)
	if ids["isch"] {
		t.Fatalf("acute insight leaked through chronic filter: %v", ids)
	}
	if !ids["gen"] || !ids["hem"] {
		t.Fatalf("phaseless insights should match any phase: %v", ids)
	}
}

func TestSearchInsightsNilQuery(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")

	older := testInsight("older", "p1", []float32{1, 0, 0})
	older.IngestedAt = time.Now().Add(-time.Hour)
	newer := testInsight("newer", "p1", []float32{0, 1, 0})

	if err := store.InsertInsights(ctx, []types.Insight{older, newer}); err != nil {
		t.Fatal(err)
	}

	results, err := store.SearchInsights(ctx, nil, 10, Filters{})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results", len(results))
	}
	if results[0].ID != "newer" {
		t.Fatalf("nil query should order by recency, got %s first", results[0].ID)
	}
	if results[0].Score != 0 || results[1].Score != 0 {
		t.Fatal("nil query should score zero")
	}
}

func resultIDs(results []ScoredInsight) map[string]bool {
	ids := make(map[string]bool)
	for _, r := range results {
		ids[r.ID] = true
	}
	return ids
}

// --- bites ---

func TestGetBiteNotGenerated(t *testing.T) {
	store := testSetup(t)
	_, err := store.GetBite(context.Background(), "pat-1", "2026-02-10")
	if !errors.Is(err, ErrNotGenerated) {
		t.Fatalf("err = %v, want ErrNotGenerated", err)
	}
}

func TestInsertBiteRoundTrip(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	bite := testBite("b1", "pat-1", "2026-02-10")
	stored, err := store.InsertBite(ctx, bite)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ID != "b1" {
		t.Fatalf("stored id = %s", stored.ID)
	}

	got, err := store.GetBite(ctx, "pat-1", "2026-02-10")
	if err != nil {
		t.Fatal(err)
	}
	if got.StartCardID != "c1" || len(got.Cards) != 2 || got.SequenceLength != 2 {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Cards[1].SourceInsightID != "ins-b1" {
		t.Fatalf("card detail lost: %+v", got.Cards[1])
	}
}

func TestInsertBiteConflictReturnsStored(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	first := testBite("b1", "pat-1", "2026-02-10")
	if _, err := store.InsertBite(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := testBite("b2", "pat-1", "2026-02-10")
	got, err := store.InsertBite(ctx, second)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "b1" {
		t.Fatalf("conflict should return the stored bite, got %s", got.ID)
	}
}

func TestSeenInsightIDs(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	today := time.Now().UTC().Format("2006-01-02")
	old := time.Now().UTC().AddDate(0, 0, -30).Format("2006-01-02")

	if _, err := store.InsertBite(ctx, testBite("recent", "pat-1", today)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertBite(ctx, testBite("stale", "pat-1", old)); err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertBite(ctx, testBite("other", "pat-2", today)); err != nil {
		t.Fatal(err)
	}

	seen, err := store.SeenInsightIDs(ctx, "pat-1", 14)
	if err != nil {
		t.Fatal(err)
	}
	if len(seen) != 1 || !seen["ins-recent"] {
		t.Fatalf("seen = %v", seen)
	}
}

// --- answers ---

func TestInsertAnswersOwnership(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	if _, err := store.InsertBite(ctx, testBite("b1", "pat-1", "2026-02-10")); err != nil {
		t.Fatal(err)
	}

	answers := []types.Answer{{
		ID:           "a1",
		CardID:       "c2",
		SelectedKey:  "a",
		QuestionText: "How are you feeling?",
	}}

	if err := store.InsertAnswers(ctx, "b1", "pat-2", answers); err == nil {
		t.Fatal("answer for another patient's bite should fail")
	}
	if err := store.InsertAnswers(ctx, "missing", "pat-1", answers); err == nil {
		t.Fatal("answer for a missing bite should fail")
	}
	if err := store.InsertAnswers(ctx, "b1", "pat-1", answers); err != nil {
		t.Fatal(err)
	}
}

func TestRecentAnswersWindow(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	if _, err := store.InsertBite(ctx, testBite("b1", "pat-1", "2026-02-10")); err != nil {
		t.Fatal(err)
	}

	answers := []types.Answer{
		{ID: "old", CardID: "c2", SelectedKey: "a", CreatedAt: time.Now().AddDate(0, 0, -60)},
		{ID: "new", CardID: "c2", SelectedKey: "b", CreatedAt: time.Now()},
	}
	if err := store.InsertAnswers(ctx, "b1", "pat-1", answers); err != nil {
		t.Fatal(err)
	}

	recent, err := store.RecentAnswers(ctx, "pat-1", 30)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 1 || recent[0].ID != "new" {
		t.Fatalf("recent = %+v", recent)
	}
	if recent[0].BiteID != "b1" || recent[0].PatientID != "pat-1" {
		t.Fatalf("answer provenance lost: %+v", recent[0])
	}
}

// --- stats ---

func TestStats(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()

	insertPaper(t, store, "p1")
	if err := store.InsertInsights(ctx, []types.Insight{
		testInsight("i1", "p1", []float32{1, 0, 0}),
		testInsight("i2", "p1", nil),
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.InsertBite(ctx, testBite("b1", "pat-1", "2026-02-10")); err != nil {
		t.Fatal(err)
	}

	st, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := Stats{Papers: 1, Sections: 2, Insights: 2, Embedded: 1, Bites: 1, Answers: 0}
	if st != want {
		t.Fatalf("stats = %+v, want %+v", st, want)
	}
}

func TestStoreReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	cfg := types.StoreConfig{DataDir: dir, Dimensions: 3}

	store, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	paper := &types.Paper{ID: "p1", Fingerprint: "fp", IngestedAt: time.Now()}
	if err := store.InsertPaper(context.Background(), paper, nil); err != nil {
		t.Fatal(err)
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewStore(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	id, err := reopened.PaperIDByFingerprint(context.Background(), "fp")
	if err != nil {
		t.Fatal(err)
	}
	if id != "p1" {
		t.Fatalf("id = %q after reopen", id)
	}
}

func TestCosine(t *testing.T) {
	cases := []struct {
		a, b []float32
		want float64
	}{
		{[]float32{1, 0}, []float32{1, 0}, 1},
		{[]float32{1, 0}, []float32{0, 1}, 0},
		{[]float32{1, 0}, []float32{-1, 0}, -1},
		{[]float32{1, 2}, []float32{1, 2, 3}, 0},
		{[]float32{0, 0}, []float32{1, 1}, 0},
	}
	for i, c := range cases {
		if got := cosine(c.a, c.b); !closeEnough(got, c.want) {
			t.Errorf("case %d: cosine = %f, want %f", i, got, c.want)
		}
	}
}

func closeEnough(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}

func TestSearchInsightsDeterministicTieBreak(t *testing.T) {
	store := testSetup(t)
	ctx := context.Background()
	insertPaper(t, store, "p1")

	ts := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	a := testInsight("aaa", "p1", []float32{1, 0, 0})
	a.IngestedAt = ts
	b := testInsight("bbb", "p1", []float32{1, 0, 0})
	b.IngestedAt = ts
	if err := store.InsertInsights(ctx, []types.Insight{b, a}); err != nil {
		t.Fatal(err)
	}

	for run := 0; run < 3; run++ {
		results, err := store.SearchInsights(ctx, []float32{1, 0, 0}, 10, Filters{})
		if err != nil {
			t.Fatal(err)
		}
		got := fmt.Sprintf("%s,%s", results[0].ID, results[1].ID)
		if got != "aaa,bbb" {
			t.Fatalf("run %d: order = %s", run, got)
		}
	}
}
