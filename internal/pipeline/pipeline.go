// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline orchestrates ingestion: parse a document, extract
// insights per section, embed them, and store everything. Per-document
// failures are counted and logged, never fatal to the batch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/strokecovery/bites-engine/internal/embed"
	"github.com/strokecovery/bites-engine/internal/extract"
	"github.com/strokecovery/bites-engine/internal/knowledge"
	"github.com/strokecovery/bites-engine/internal/parse"
	"github.com/strokecovery/bites-engine/pkg/types"
)

// Pipeline wires the ingestion stages together.
type Pipeline struct {
	store    *knowledge.Store
	ai       extract.AIBackend
	embedder embed.Backend
	cfg      types.PipelineConfig
}

// New builds a pipeline. The embedder may be nil, in which case insights
// persist without vectors and stay eligible for backfill.
func New(store *knowledge.Store, ai extract.AIBackend, embedder embed.Backend, cfg types.PipelineConfig) *Pipeline {
	return &Pipeline{store: store, ai: ai, embedder: embedder, cfg: cfg}
}

// Summary holds counts from an ingestion run.
type Summary struct {
	Ingested int
	Skipped  int
	Failed   int
	Insights int
}

// Total returns the number of documents processed.
func (s Summary) Total() int {
	return s.Ingested + s.Skipped + s.Failed
}

func (s *Summary) add(other Summary) {
	s.Ingested += other.Ingested
	s.Skipped += other.Skipped
	s.Failed += other.Failed
	s.Insights += other.Insights
}

// IngestFile runs the full pipeline over one document. Re-ingesting a
// file with identical bytes is a no-op (fingerprint match). Sections
// whose extraction degrades contribute zero insights without failing
// the document; embedding failure leaves insights stored unembedded.
func (p *Pipeline) IngestFile(ctx context.Context, path string, w io.Writer) (Summary, error) {
	name := filepath.Base(path)

	raw, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", name, err)
		return Summary{Failed: 1}, nil
	}

	existing, err := p.store.PaperIDByFingerprint(ctx, parse.Fingerprint(raw))
	if err != nil {
		return Summary{}, err
	}
	if existing != "" {
		fmt.Fprintf(w, "skipped %s (already ingested)\n", name)
		return Summary{Skipped: 1}, nil
	}

	paper, sections, err := parse.Parse(raw, name)
	if err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", name, err)
		return Summary{Failed: 1}, nil
	}

	paper.ID = uuid.NewString()
	paper.IngestedAt = time.Now()
	for i := range sections {
		sections[i].ID = uuid.NewString()
		sections[i].PaperID = paper.ID
	}

	var insights []types.Insight
	for _, sec := range sections {
		secInsights, err := extract.ExtractSection(ctx, p.ai, sec, p.cfg.Extraction)
		if err != nil {
			if errors.Is(err, extract.ErrBadResponse) {
				fmt.Fprintf(w, "warning: %s section %s: %v\n", name, sec.Name, err)
				continue
			}
			fmt.Fprintf(w, "failed  %s: %v\n", name, err)
			return Summary{Failed: 1}, nil
		}
		for i := range secInsights {
			secInsights[i].ID = uuid.NewString()
			secInsights[i].IngestedAt = time.Now()
		}
		insights = append(insights, secInsights...)
	}

	if p.embedder != nil && len(insights) > 0 {
		if err := embed.EmbedInsights(ctx, p.embedder, insights, p.cfg.Embedding.Dimensions); err != nil {
			fmt.Fprintf(w, "warning: %s: %v (insights stored without embeddings)\n", name, err)
			for i := range insights {
				insights[i].Embedding = nil
			}
		}
	}

	if err := p.store.InsertPaper(ctx, paper, sections); err != nil {
		fmt.Fprintf(w, "failed  %s: %v\n", name, err)
		return Summary{Failed: 1}, nil
	}
	if err := p.store.InsertInsights(ctx, insights); err != nil {
		// Roll back the paper so a retry can start clean.
		p.store.DeletePaper(ctx, paper.ID)
		fmt.Fprintf(w, "failed  %s: %v\n", name, err)
		return Summary{Failed: 1}, nil
	}

	fmt.Fprintf(w, "ingested %s (%d sections, %d insights)\n", name, len(sections), len(insights))
	return Summary{Ingested: 1, Insights: len(insights)}, nil
}

// IngestDir runs IngestFile over every regular file in dir, fanning out
// to at most `workers` goroutines. Results aggregate into one summary.
func (p *Pipeline) IngestDir(ctx context.Context, dir string, workers int, w io.Writer) (Summary, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Summary{}, fmt.Errorf("reading directory %s: %w", dir, err)
	}
	if workers <= 0 {
		workers = 1
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(paths)

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		summary Summary
		sem     = make(chan struct{}, workers)
	)

	for _, path := range paths {
		select {
		case <-ctx.Done():
			wg.Wait()
			return summary, ctx.Err()
		case sem <- struct{}{}:
		}

		wg.Add(1)
		go func(path string) {
			defer wg.Done()
			defer func() { <-sem }()

			s, err := p.IngestFile(ctx, path, &lockedWriter{mu: &mu, w: w})
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				fmt.Fprintf(w, "failed  %s: %v\n", filepath.Base(path), err)
				summary.Failed++
				return
			}
			summary.add(s)
		}(path)
	}

	wg.Wait()
	fmt.Fprintf(w, "\ningested: %d, skipped: %d, failed: %d, insights: %d\n",
		summary.Ingested, summary.Skipped, summary.Failed, summary.Insights)
	return summary, nil
}

// BackfillSummary holds counts from an embedding backfill run.
type BackfillSummary struct {
	Embedded int
	Failed   int
}

// Backfill embeds insights that were stored without a vector, up to
// `limit` per run (0 means the store default batch size).
func (p *Pipeline) Backfill(ctx context.Context, limit int, w io.Writer) (BackfillSummary, error) {
	if p.embedder == nil {
		return BackfillSummary{}, fmt.Errorf("no embedding backend configured")
	}

	pending, err := p.store.ListUnembedded(ctx, limit)
	if err != nil {
		return BackfillSummary{}, err
	}
	if len(pending) == 0 {
		fmt.Fprintf(w, "nothing to backfill\n")
		return BackfillSummary{}, nil
	}

	if err := embed.EmbedInsights(ctx, p.embedder, pending, p.cfg.Embedding.Dimensions); err != nil {
		return BackfillSummary{Failed: len(pending)}, fmt.Errorf("backfill embedding: %w", err)
	}

	var summary BackfillSummary
	for _, ins := range pending {
		if err := p.store.UpdateEmbedding(ctx, ins.ID, ins.Embedding); err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", ins.ID, err)
			summary.Failed++
			continue
		}
		summary.Embedded++
	}

	fmt.Fprintf(w, "embedded: %d, failed: %d\n", summary.Embedded, summary.Failed)
	return summary, nil
}

// lockedWriter serializes progress lines from concurrent workers.
type lockedWriter struct {
	mu *sync.Mutex
	w  io.Writer
}

func (lw *lockedWriter) Write(b []byte) (int, error) {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.w.Write(b)
}
