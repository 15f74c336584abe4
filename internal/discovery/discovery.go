// Package discovery drives paginated search listings and turns them into
// entity stubs for enrichment.
package discovery

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fmatlas/lattes-harvester/internal/lattes"
	"github.com/fmatlas/lattes-harvester/internal/model"
)

// Config tunes one discovery run.
type Config struct {
	// PageSize is the records-per-page the listing endpoint is asked for.
	PageSize int

	// MaxPages caps the pages fetched per term. Zero means no cap.
	MaxPages int

	// AsyncPaging fetches pages 1..n-1 concurrently after page 0. When
	// false, pages are fetched sequentially with PageDelay between them.
	AsyncPaging bool

	// Concurrency bounds in-flight page fetches when AsyncPaging is set.
	Concurrency int

	// PageDelay spaces sequential page fetches.
	PageDelay time.Duration
}

// DefaultConfig matches the service's own listing page size.
func DefaultConfig() Config {
	return Config{
		PageSize:    10,
		AsyncPaging: true,
		Concurrency: 3,
		PageDelay:   2 * time.Second,
	}
}

// Orchestrator discovers entity stubs for search terms.
type Orchestrator struct {
	session *lattes.Session
	cfg     Config
}

// New builds an Orchestrator over a shared session.
func New(session *lattes.Session, cfg Config) *Orchestrator {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Orchestrator{session: session, cfg: cfg}
}

// Discover fetches every listing page for term and returns the stubs in
// page order. Page 0 is always fetched first: its pagination metadata
// decides how many further pages exist. A fetch failure stops further
// paging but keeps the stubs collected so far; partial results are not an
// error.
func (o *Orchestrator) Discover(ctx context.Context, term string) ([]model.EntityStub, error) {
	stubs, meta, err := o.fetchPage(ctx, term, 0)
	if err != nil {
		return nil, err
	}

	if !meta.Found {
		// No pagination metadata: page forward until an empty page.
		return o.discoverBlind(ctx, term, stubs)
	}

	totalPages := (meta.TotalRecords + o.cfg.PageSize - 1) / o.cfg.PageSize
	if o.cfg.MaxPages > 0 && totalPages > o.cfg.MaxPages {
		totalPages = o.cfg.MaxPages
	}
	zap.L().Info("discovery: term paged",
		zap.String("term", term),
		zap.Int("total_records", meta.TotalRecords),
		zap.Int("total_pages", totalPages),
	)
	if totalPages <= 1 {
		return stubs, nil
	}

	if o.cfg.AsyncPaging {
		return append(stubs, o.fetchPagesAsync(ctx, term, totalPages)...), nil
	}
	return append(stubs, o.fetchPagesSequential(ctx, term, totalPages)...), nil
}

func (o *Orchestrator) fetchPagesSequential(ctx context.Context, term string, totalPages int) []model.EntityStub {
	var out []model.EntityStub
	for page := 1; page < totalPages; page++ {
		if !sleepCtx(ctx, o.cfg.PageDelay) {
			return out
		}
		pageStubs, ok := o.fetchPageWithRetry(ctx, term, page)
		if !ok {
			return out
		}
		out = append(out, pageStubs...)
	}
	return out
}

func (o *Orchestrator) fetchPagesAsync(ctx context.Context, term string, totalPages int) []model.EntityStub {
	var (
		mu     sync.Mutex
		byPage = make(map[int][]model.EntityStub, totalPages-1)
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Concurrency)

	for page := 1; page < totalPages; page++ {
		g.Go(func() error {
			pageStubs, ok := o.fetchPageWithRetry(gCtx, term, page)
			if !ok {
				// Partial results: swallow the failure, keep other pages.
				return nil
			}
			mu.Lock()
			byPage[page] = pageStubs
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]int, 0, len(byPage))
	for p := range byPage {
		pages = append(pages, p)
	}
	sort.Ints(pages)

	var out []model.EntityStub
	for _, p := range pages {
		out = append(out, byPage[p]...)
	}
	return out
}

// discoverBlind pages forward until an empty page when the listing carries
// no record-count metadata, bounded by MaxPages if set.
func (o *Orchestrator) discoverBlind(ctx context.Context, term string, acc []model.EntityStub) ([]model.EntityStub, error) {
	if len(acc) == 0 {
		return acc, nil
	}
	for page := 1; o.cfg.MaxPages == 0 || page < o.cfg.MaxPages; page++ {
		if !sleepCtx(ctx, o.cfg.PageDelay) {
			return acc, nil
		}
		pageStubs, ok := o.fetchPageWithRetry(ctx, term, page)
		if !ok || len(pageStubs) == 0 {
			return acc, nil
		}
		acc = append(acc, pageStubs...)
	}
	return acc, nil
}

// fetchPageWithRetry fetches one page, retrying once after a delay when it
// parses to zero stubs: the service occasionally serves a hollow page
// mid-listing. A page that stays hollow after the retry is treated as the
// end of results, so callers stop paging.
func (o *Orchestrator) fetchPageWithRetry(ctx context.Context, term string, page int) ([]model.EntityStub, bool) {
	stubs, _, err := o.fetchPage(ctx, term, page)
	if err != nil {
		zap.L().Warn("discovery: page fetch failed, stopping term",
			zap.String("term", term),
			zap.Int("page", page),
			zap.Error(err),
		)
		return nil, false
	}
	if len(stubs) > 0 {
		return stubs, true
	}

	if !sleepCtx(ctx, o.cfg.PageDelay) {
		return nil, false
	}
	stubs, _, err = o.fetchPage(ctx, term, page)
	if err != nil {
		return nil, false
	}
	if len(stubs) == 0 {
		zap.L().Info("discovery: page empty after retry, treating as end of results",
			zap.String("term", term),
			zap.Int("page", page),
		)
		return nil, false
	}
	return stubs, true
}

func (o *Orchestrator) fetchPage(ctx context.Context, term string, page int) ([]model.EntityStub, lattes.PageMeta, error) {
	body, err := lattes.FetchListing(ctx, o.session, term, page*o.cfg.PageSize, o.cfg.PageSize)
	if err != nil {
		return nil, lattes.PageMeta{}, err
	}
	stubs, meta, err := lattes.ParseListing(body, term)
	if err != nil {
		return nil, lattes.PageMeta{}, err
	}
	zap.L().Debug("discovery: page parsed",
		zap.String("term", term),
		zap.Int("page", page),
		zap.Int("stubs", len(stubs)),
	)
	return stubs, meta, nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
