package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/pauljones0/flipscout/internal/browser"
	"github.com/pauljones0/flipscout/internal/config"
	"github.com/pauljones0/flipscout/internal/models"
	"github.com/pauljones0/flipscout/internal/scraper"
	"github.com/pauljones0/flipscout/internal/util"
)

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("run already in progress")

// State is the step the orchestrator is currently in.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateExtracting
	StateFiltering
	StateEvaluating
	StateNotifying
	StateCleanup
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateExtracting:
		return "extracting"
	case StateFiltering:
		return "filtering"
	case StateEvaluating:
		return "evaluating"
	case StateNotifying:
		return "notifying"
	case StateCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

type Processor interface {
	Run(ctx context.Context) (models.RunSummary, error)
	State() State
}

type ListingProcessor struct {
	store     SeenStore
	fetcher   PageFetcher
	extractor ListingExtractor
	evaluator Evaluator
	notifier  ListingNotifier

	marketplaceURL string
	retention      time.Duration
	delayMin       time.Duration
	delayMax       time.Duration
	searches       func() ([]models.SearchSpec, error)

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error

	running atomic.Bool
	state   atomic.Int32
}

func New(store SeenStore, f PageFetcher, x ListingExtractor, e Evaluator, n ListingNotifier, cfg *config.Config) *ListingProcessor {
	return &ListingProcessor{
		store:          store,
		fetcher:        f,
		extractor:      x,
		evaluator:      e,
		notifier:       n,
		marketplaceURL: cfg.MarketplaceURL,
		retention:      cfg.Retention(),
		delayMin:       cfg.PageDelayMin,
		delayMax:       cfg.PageDelayMax,
		searches: func() ([]models.SearchSpec, error) {
			s, err := config.LoadSearches(cfg.SearchesPath)
			if err != nil {
				return nil, err
			}
			return s.Searches, nil
		},
		now:   time.Now,
		sleep: util.Sleep,
	}
}

func (p *ListingProcessor) State() State {
	return State(p.state.Load())
}

func (p *ListingProcessor) setState(s State) {
	p.state.Store(int32(s))
}

// Run scans every configured search once. Per-search store failures are joined
// into the returned error; every other failure is logged and counted in the summary.
func (p *ListingProcessor) Run(ctx context.Context) (models.RunSummary, error) {
	if !p.running.CompareAndSwap(false, true) {
		return models.RunSummary{}, ErrRunInProgress
	}
	defer p.running.Store(false)
	defer p.setState(StateIdle)

	summary := models.RunSummary{RunID: uuid.NewString(), StartedAt: p.now()}
	log := slog.With("run_id", summary.RunID)

	searches, err := p.searches()
	if err != nil {
		return summary, fmt.Errorf("failed to load searches: %w", err)
	}
	log.Info("Run started", "searches", len(searches))

	var errs []error
	for _, spec := range searches {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		summary.Searches++
		if err := p.runSearch(ctx, log.With("search", spec.Name), spec, &summary); err != nil {
			summary.Errors++
			errs = append(errs, fmt.Errorf("search %q: %w", spec.Name, err))
		}
	}

	if ctx.Err() == nil {
		p.cleanup(ctx, log, &summary)
	}

	summary.Duration = p.now().Sub(summary.StartedAt)
	log.Info("Run finished",
		"duration", summary.Duration.Round(time.Millisecond),
		"searches", summary.Searches,
		"pages", summary.PagesFetched,
		"candidates", summary.Candidates,
		"accepted", summary.Accepted,
		"evaluated", summary.Evaluated,
		"hot", summary.Hot,
		"good", summary.Good,
		"notified", summary.Notified,
		"purged", summary.Purged,
		"errors", summary.Errors,
	)
	if ctx.Err() == nil {
		if err := p.notifier.SendSummary(ctx, summary); err != nil {
			log.Warn("Failed to send run summary", "error", err)
		}
	}
	return summary, errors.Join(errs...)
}

func (p *ListingProcessor) runSearch(ctx context.Context, log *slog.Logger, spec models.SearchSpec, summary *models.RunSummary) error {
	searchURL, err := scraper.SearchURL(p.marketplaceURL, spec)
	if err != nil {
		return err
	}

	for page := 1; page <= spec.MaxPages; page++ {
		if page > 1 {
			if err := p.sleep(ctx, p.pageDelay()); err != nil {
				return err
			}
		}

		p.setState(StateFetching)
		content, err := p.fetcher.Fetch(ctx, searchURL, page)
		if err != nil {
			summary.Errors++
			var ff *browser.FetchFailure
			switch {
			case browser.IsDetected(err):
				log.Warn("Blocked by marketplace, stopping search", "page", page, "error", err)
			case errors.As(err, &ff):
				log.Warn("Page fetch failed, stopping search", "page", page, "kind", ff.Kind.String(), "error", err)
			default:
				log.Warn("Page fetch failed, stopping search", "page", page, "error", err)
			}
			return nil
		}
		summary.PagesFetched++

		p.setState(StateExtracting)
		candidates := p.extractor.Extract(content)
		if len(candidates) == 0 {
			log.Info("No listings on page, stopping pagination", "page", page)
			return nil
		}
		for i := range candidates {
			candidates[i].SearchTag = spec.Name
		}
		summary.Candidates += len(candidates)

		if err := ctx.Err(); err != nil {
			return err
		}
		p.setState(StateFiltering)
		accepted, stats, err := Filter(ctx, candidates, spec, p.store, p.now())
		if err != nil {
			return fmt.Errorf("page %d: %w", page, err)
		}
		summary.Accepted += len(accepted)
		log.Info("Page processed",
			"page", page,
			"candidates", stats.Candidates,
			"duplicates", stats.Duplicates,
			"already_seen", stats.AlreadySeen,
			"rejected", stats.Rejected,
			"accepted", stats.Accepted,
		)

		for _, l := range accepted {
			if err := ctx.Err(); err != nil {
				return err
			}
			p.evaluateAndNotify(ctx, log, l, summary)
		}
	}
	return nil
}

func (p *ListingProcessor) evaluateAndNotify(ctx context.Context, log *slog.Logger, l models.Listing, summary *models.RunSummary) {
	p.setState(StateEvaluating)
	v, err := p.evaluator.Evaluate(ctx, l)
	if err != nil {
		log.Warn("Evaluation failed, using fallback verdict", "id", l.ID, "error", err)
		v = models.FallbackVerdict(fmt.Sprintf("Evaluation failed: %v", err))
	}
	summary.Evaluated++
	log.Debug("Listing evaluated", "id", l.ID, "title", l.Title, "price", l.Price, "verdict", v.Tier, "profit", v.EstimatedProfit)

	switch v.Tier {
	case models.TierHot:
		summary.Hot++
	case models.TierGood:
		summary.Good++
	}
	if !v.Tier.Notifiable() {
		return
	}

	p.setState(StateNotifying)
	if err := p.notifier.Send(ctx, l, v); err != nil {
		summary.Errors++
		log.Error("Failed to send deal alert", "id", l.ID, "error", err)
		return
	}
	summary.Notified++
	log.Info("Deal alert sent", "id", l.ID, "title", l.Title, "verdict", v.Tier, "profit", v.EstimatedProfit)
}

func (p *ListingProcessor) cleanup(ctx context.Context, log *slog.Logger, summary *models.RunSummary) {
	p.setState(StateCleanup)
	cutoff := p.now().Add(-p.retention)
	purged, err := p.store.PurgeOlderThan(ctx, cutoff)
	if err != nil {
		log.Warn("Failed to purge old listings", "cutoff", cutoff, "error", err)
		return
	}
	summary.Purged = purged
	if purged > 0 {
		log.Info("Purged old listings", "count", purged, "cutoff", cutoff)
	}
}

// pageDelay picks a wait in [delayMin, delayMax] so page requests do not arrive
// at a fixed cadence.
func (p *ListingProcessor) pageDelay() time.Duration {
	if p.delayMax <= p.delayMin {
		return p.delayMin
	}
	return p.delayMin + rand.N(p.delayMax-p.delayMin+1)
}
