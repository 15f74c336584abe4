// Package enrich runs the per-entity pipeline: access strategy chain,
// extraction, deduplication, and batched persistence.
package enrich

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fmatlas/lattes-harvester/internal/dedupe"
	"github.com/fmatlas/lattes-harvester/internal/extract"
	"github.com/fmatlas/lattes-harvester/internal/lattes"
	"github.com/fmatlas/lattes-harvester/internal/model"
	"github.com/fmatlas/lattes-harvester/internal/resilience"
)

// Store is the slice of the persistence layer the orchestrator writes to.
type Store interface {
	UpsertBatch(ctx context.Context, researchers []model.Researcher) (model.UpsertCounts, error)
	RecordFailure(ctx context.Context, f model.Failure) error
}

// DetailFetcher retrieves the detail document for one external id.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, s *lattes.Session, externalID string) (*lattes.Document, error)
}

// Config tunes one enrichment run.
type Config struct {
	// Workers bounds concurrent per-entity pipelines.
	Workers int

	// BatchSize is the number of researchers per store transaction.
	BatchSize int

	// GetDetails disables the detail fetch when false: discovery-only
	// runs persist bare stubs.
	GetDetails bool

	// BreakerThreshold stops new fetches after this many consecutive
	// challenge-blocked entities. Zero disables the breaker.
	BreakerThreshold int
}

// DefaultConfig paces politely against the remote service.
func DefaultConfig() Config {
	return Config{
		Workers:          4,
		BatchSize:        25,
		GetDetails:       true,
		BreakerThreshold: 10,
	}
}

// Summary reports one enrichment run.
type Summary struct {
	Stubs            int                `json:"stubs"`
	Enriched         int                `json:"enriched"`
	ChallengeBlocked int                `json:"challenge_blocked"`
	FetchFailures    int                `json:"fetch_failures"`
	Counts           model.UpsertCounts `json:"counts"`
}

// counters is the worker-shared, race-free view of the summary.
type counters struct {
	enriched   atomic.Int64
	challenged atomic.Int64
	failed     atomic.Int64
}

// Orchestrator fans entity stubs out to workers and batches the results
// into the store. Workers never hold the store's write lock across a
// network call: all persistence happens on the collector side.
type Orchestrator struct {
	session *lattes.Session
	chain   DetailFetcher
	store   Store
	cfg     Config
}

// New builds an Orchestrator.
func New(session *lattes.Session, chain DetailFetcher, store Store, cfg Config) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	return &Orchestrator{session: session, chain: chain, store: store, cfg: cfg}
}

// Enrich processes every stub and returns the run summary. Entity-level
// failures are recorded and skipped; only persistence failures surface in
// the returned error, and later batches still run after a failed one.
func (o *Orchestrator) Enrich(ctx context.Context, stubs []model.EntityStub) (Summary, error) {
	summary := Summary{Stubs: len(stubs)}
	if len(stubs) == 0 {
		return summary, nil
	}

	var (
		cnt     counters
		results = make(chan model.Researcher, o.cfg.BatchSize)
		breaker = resilience.NewBreaker(o.cfg.BreakerThreshold)
	)

	type collected struct {
		counts model.UpsertCounts
		err    error
	}
	collectorDone := make(chan collected, 1)
	go func() {
		counts, err := o.collect(ctx, results)
		collectorDone <- collected{counts, err}
	}()

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, stub := range stubs {
		g.Go(func() error {
			r := o.enrichOne(gCtx, stub, breaker, &cnt)
			select {
			case results <- r:
				return nil
			case <-gCtx.Done():
				return gCtx.Err()
			}
		})
	}
	workerErr := g.Wait()
	close(results)
	got := <-collectorDone

	if workerErr != nil && !errors.Is(workerErr, context.Canceled) {
		zap.L().Warn("enrich: worker pool stopped early", zap.Error(workerErr))
	}

	summary.Enriched = int(cnt.enriched.Load())
	summary.ChallengeBlocked = int(cnt.challenged.Load())
	summary.FetchFailures = int(cnt.failed.Load())
	summary.Counts = got.counts
	return summary, got.err
}

// enrichOne runs the fetch/extract/dedupe pipeline for a single stub. The
// stub is always persisted, with or without detail attributes.
func (o *Orchestrator) enrichOne(ctx context.Context, stub model.EntityStub, breaker *resilience.Breaker, cnt *counters) model.Researcher {
	r := model.FromStub(stub)
	if !o.cfg.GetDetails || breaker.Tripped() {
		return r
	}

	doc, err := o.chain.FetchDetail(ctx, o.session, stub.ExternalID)
	if err != nil {
		stage := "fetch"
		if errors.Is(err, lattes.ErrChallengeBlocked) {
			stage = "challenge"
			cnt.challenged.Add(1)
			if breaker.Failure() {
				zap.L().Warn("enrich: breaker tripped, persisting remaining stubs bare",
					zap.String("external_id", stub.ExternalID))
			}
		} else {
			cnt.failed.Add(1)
		}
		o.recordFailure(ctx, model.Failure{
			ExternalID: stub.ExternalID,
			Stage:      stage,
			Message:    err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return r
	}
	breaker.Success()

	res, err := extract.FromDocument(doc.Body)
	if err != nil {
		cnt.failed.Add(1)
		o.recordFailure(ctx, model.Failure{
			ExternalID: stub.ExternalID,
			Stage:      "extract",
			Strategy:   doc.Strategy,
			Message:    err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return r
	}

	mergeAttributes(&r, res.Attributes)
	r.Projects = dedupe.Collapse(res.Candidates)
	for i := range r.Projects {
		r.Projects[i].ExternalID = r.ExternalID
	}
	cnt.enriched.Add(1)

	zap.L().Debug("enrich: entity enriched",
		zap.String("external_id", stub.ExternalID),
		zap.String("strategy", doc.Strategy),
		zap.Int("projects", len(r.Projects)),
	)
	return r
}

// mergeAttributes fills the stub's record with extracted values. The
// extracted name wins over the listing's display name, which is often
// truncated.
func mergeAttributes(r *model.Researcher, attrs model.Researcher) {
	if attrs.Name != "" {
		r.Name = attrs.Name
	}
	if r.Institution == "" {
		r.Institution = attrs.Institution
	}
	r.Area = attrs.Area
	r.City = attrs.City
	r.State = attrs.State
	r.Country = attrs.Country
	r.LastProfileUpdate = attrs.LastProfileUpdate
}

// collect drains results into store batches of BatchSize. A failed batch
// is dropped after logging; subsequent batches continue. The last
// persistence error is returned once the channel closes.
func (o *Orchestrator) collect(ctx context.Context, results <-chan model.Researcher) (model.UpsertCounts, error) {
	var (
		total   model.UpsertCounts
		batch   []model.Researcher
		lastErr error
	)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		counts, err := o.store.UpsertBatch(ctx, batch)
		if err != nil {
			lastErr = eris.Wrap(err, "enrich: persist batch")
			zap.L().Error("enrich: batch persist failed",
				zap.Int("size", len(batch)),
				zap.Error(err),
			)
		} else {
			total.Add(counts)
		}
		batch = nil
	}

	for r := range results {
		batch = append(batch, r)
		if len(batch) >= o.cfg.BatchSize {
			flush()
		}
	}
	flush()
	return total, lastErr
}

func (o *Orchestrator) recordFailure(ctx context.Context, f model.Failure) {
	if err := o.store.RecordFailure(ctx, f); err != nil {
		zap.L().Warn("enrich: record failure",
			zap.String("external_id", f.ExternalID),
			zap.Error(err),
		)
	}
}
