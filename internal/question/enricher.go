package question

import (
	"context"
	"log/slog"
	"time"

	"github.com/MrWong99/kolloq/internal/detect"
	"github.com/MrWong99/kolloq/internal/gateway"
	"github.com/MrWong99/kolloq/internal/observe"
)

// Enricher is the background worker that fills question metadata. One batch
// runs at a time; within a batch questions are processed strictly in index
// order, one question at a time, and the progress record is updated after
// each. Question k+1 never starts before question k completes.
type Enricher struct {
	store   *Store
	gw      *gateway.Gateway
	builder *detect.MetaBuilder
	dumpDir string
	metrics *observe.Metrics
	logger  *slog.Logger
}

// NewEnricher wires the worker. dumpDir, when non-empty, receives a JSON
// dump of the batch metadata after the last question. metrics and logger may
// be nil.
func NewEnricher(store *Store, gw *gateway.Gateway, builder *detect.MetaBuilder, dumpDir string, metrics *observe.Metrics, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Enricher{
		store:   store,
		gw:      gw,
		builder: builder,
		dumpDir: dumpDir,
		metrics: metrics,
		logger:  logger.With("component", "enricher"),
	}
}

// Run blocks, processing one enrichment batch per store load signal, until
// ctx is cancelled. Intended to be started once from main.
func (e *Enricher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-e.store.Notify():
			e.enrichBatch(ctx)
		}
	}
}

// enrichBatch processes every question of the current script generation.
func (e *Enricher) enrichBatch(ctx context.Context) {
	gen := e.store.Generation()
	total := e.store.Len()
	e.logger.Info("enrichment batch started", "questions", total, "generation", gen)
	batchStart := time.Now()

	for i := 0; i < total; i++ {
		if ctx.Err() != nil {
			return
		}

		q, ok := e.store.At(i)
		if !ok || e.store.Generation() != gen {
			// Script replaced mid-batch; the new load signal restarts us.
			e.logger.Info("batch abandoned, script reloaded", "generation", gen)
			return
		}

		e.enrichOne(ctx, gen, i, q)
	}

	e.logger.Info("enrichment batch finished",
		"questions", total,
		"duration_s", time.Since(batchStart).Seconds())

	if e.dumpDir != "" {
		if path, err := e.writeDump(e.store.All()); err != nil {
			e.logger.Error("metadata dump failed", "error", err)
		} else {
			e.logger.Info("metadata dump written", "path", path)
		}
	}
}

// enrichOne asks the gateway for topic metadata, derives the matching
// artefacts per subtopic, and publishes the result. A permanently invalid
// LLM output leaves the question textual; the batch moves on.
func (e *Enricher) enrichOne(ctx context.Context, gen uint64, i int, q Question) {
	start := time.Now()

	enr, err := e.gw.Enrich(ctx, q.Prompt)
	if err != nil {
		e.logger.Warn("question enrichment failed, storing without metadata",
			"question_id", q.ID, "index", i, "error", err)
		if e.metrics != nil {
			e.metrics.RecordEnrichment(ctx, time.Since(start), false)
		}
		e.store.SetMetadata(gen, i, "", nil, nil, nil, nil, nil, err)
		return
	}

	n := len(enr.Subtopics)
	lemmaSets := make([]map[string]struct{}, n)
	fuzzyNorms := make([]string, n)
	vectors := make([][]float32, n)
	for j, kws := range enr.Keywords {
		meta := e.builder.Build(ctx, kws)
		lemmaSets[j] = meta.LemmaSet
		fuzzyNorms[j] = meta.FuzzyNorm
		vectors[j] = meta.Vector
	}

	applied := e.store.SetMetadata(gen, i, enr.PrimaryTopic, enr.Subtopics, enr.Keywords, lemmaSets, fuzzyNorms, vectors, nil)
	if e.metrics != nil {
		e.metrics.RecordEnrichment(ctx, time.Since(start), applied)
	}
	e.logger.Debug("question enriched",
		"question_id", q.ID, "index", i,
		"primary_topic", enr.PrimaryTopic, "subtopics", n, "applied", applied)
}
