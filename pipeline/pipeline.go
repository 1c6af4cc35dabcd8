package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cheerily/cheerily/auth"
	"github.com/cheerily/cheerily/client"
	"github.com/cheerily/cheerily/db"
	"github.com/rs/zerolog/log"
)

const (
	DefaultRefillThreshold     = 5
	DefaultMaxDuplicateRetries = 5
)

// Authenticator hands out access tokens and renews them on rejection.
type Authenticator interface {
	EnsureValidToken(ctx context.Context) (string, error)
	RenewAccessToken(ctx context.Context) error
}

// FeedFetcher retrieves one batch of cheers from upstream.
type FeedFetcher interface {
	FetchBatch(ctx context.Context, accessToken string) ([]db.Cheer, error)
}

type Options struct {
	// RefillThreshold starts a background refill once fewer unseen cheers remain.
	RefillThreshold int
	// MaxDuplicateRetries caps consecutive fetches that yield nothing new.
	MaxDuplicateRetries int
}

// Pipeline hands out a stream of cheers that were never shown before.
type Pipeline struct {
	auth    Authenticator
	fetcher FeedFetcher
	store   db.CheerRepository
	dedup   *Deduplicator

	refillThreshold int
	maxRetries      int

	inFlight  atomic.Bool
	refilling atomic.Bool
	// fetchMu keeps a single upstream batch request in flight.
	fetchMu sync.Mutex
	refills sync.WaitGroup

	baseCtx context.Context
	cancel  context.CancelFunc
}

func New(authenticator Authenticator, fetcher FeedFetcher, store db.CheerRepository, opts Options) *Pipeline {
	if opts.RefillThreshold < 0 {
		opts.RefillThreshold = 0
	}
	if opts.MaxDuplicateRetries <= 0 {
		opts.MaxDuplicateRetries = DefaultMaxDuplicateRetries
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pipeline{
		auth:            authenticator,
		fetcher:         fetcher,
		store:           store,
		dedup:           NewDeduplicator(store),
		refillThreshold: opts.RefillThreshold,
		maxRetries:      opts.MaxDuplicateRetries,
		baseCtx:         ctx,
		cancel:          cancel,
	}
}

// DefaultOptions returns the thresholds used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		RefillThreshold:     DefaultRefillThreshold,
		MaxDuplicateRetries: DefaultMaxDuplicateRetries,
	}
}

// Restore loads cheers fetched earlier but never shown back into the buffer.
func (p *Pipeline) Restore(ctx context.Context) (int, error) {
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	unseen, err := p.store.ListUnseen(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to load unseen cheers: %w", err)
	}
	p.dedup.Replace(unseen)
	log.Debug().Int("count", len(unseen)).Msg("Restored unseen cheers")
	return len(unseen), nil
}

// GetNext returns the next unseen cheer, fetching new batches as needed.
// Calls must not overlap; an overlapping call fails with ErrBusy.
func (p *Pipeline) GetNext(ctx context.Context) (db.Cheer, error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		return db.Cheer{}, ErrBusy
	}
	defer p.inFlight.Store(false)

	cheer, ok, err := p.dedup.Next(ctx)
	if err != nil {
		return db.Cheer{}, err
	}
	if ok {
		if remaining := p.dedup.Remaining(); remaining < p.refillThreshold {
			p.startRefill(remaining)
		}
		return cheer, nil
	}

	// Waits for a running refill instead of issuing a second request.
	p.fetchMu.Lock()
	defer p.fetchMu.Unlock()

	cheer, ok, err = p.dedup.Next(ctx)
	if err != nil || ok {
		return cheer, err
	}

	for attempt := 1; attempt <= p.maxRetries; attempt++ {
		fresh, err := p.fetchFresh(ctx)
		if err != nil {
			return db.Cheer{}, err
		}
		if len(fresh) == 0 {
			log.Info().Int("attempt", attempt).Int("max", p.maxRetries).Msg("Batch held nothing new, fetching again")
			continue
		}
		p.dedup.Replace(fresh)
		cheer, ok, err = p.dedup.Next(ctx)
		if err != nil {
			return db.Cheer{}, err
		}
		if ok {
			return cheer, nil
		}
	}
	log.Warn().Int("attempts", p.maxRetries).Msg("Feed exhausted")
	return db.Cheer{}, ErrFeedExhausted
}

// Remaining reports how many fetched cheers are waiting to be shown.
func (p *Pipeline) Remaining() int {
	return p.dedup.Remaining()
}

// Wait blocks until any background refill has finished.
func (p *Pipeline) Wait() {
	p.refills.Wait()
}

// Close waits for an in-flight refill and releases the pipeline.
func (p *Pipeline) Close() error {
	p.refills.Wait()
	p.cancel()
	return nil
}

func (p *Pipeline) startRefill(remaining int) {
	if p.baseCtx.Err() != nil || !p.refilling.CompareAndSwap(false, true) {
		return
	}
	p.refills.Add(1)
	log.Debug().Int("remaining", remaining).Msg("Starting background refill")

	go func() {
		defer p.refills.Done()
		defer p.refilling.Store(false)

		p.fetchMu.Lock()
		defer p.fetchMu.Unlock()

		fresh, err := p.fetchFresh(p.baseCtx)
		if err != nil {
			log.Warn().Err(err).Msg("Background refill failed")
			return
		}
		added := p.dedup.Append(fresh)
		log.Debug().Int("added", added).Msg("Background refill finished")
	}()
}

// fetchFresh fetches one batch, drops what was seen, and records the rest as
// unseen before it is buffered. Caller holds fetchMu.
func (p *Pipeline) fetchFresh(ctx context.Context) ([]db.Cheer, error) {
	batch, err := p.fetchWithRenew(ctx)
	if err != nil {
		return nil, err
	}
	fresh, err := p.dedup.Filter(ctx, batch)
	if err != nil {
		return nil, err
	}
	if err := p.store.PutUnseen(ctx, fresh); err != nil {
		return nil, fmt.Errorf("failed to store fetched cheers: %w", err)
	}
	return fresh, nil
}

// fetchWithRenew renews the access token and retries exactly once when
// upstream rejects it.
func (p *Pipeline) fetchWithRenew(ctx context.Context) ([]db.Cheer, error) {
	token, err := p.token(ctx)
	if err != nil {
		return nil, err
	}
	batch, err := p.fetcher.FetchBatch(ctx, token)
	if !errors.Is(err, client.ErrUnauthorized) {
		return batch, err
	}

	log.Info().Msg("Access token rejected, renewing")
	if err := p.auth.RenewAccessToken(ctx); err != nil {
		if errors.Is(err, auth.ErrNoRefreshToken) {
			return nil, fmt.Errorf("%w: %w", ErrAuthExpired, err)
		}
		return nil, err
	}
	token, err = p.token(ctx)
	if err != nil {
		return nil, err
	}
	batch, err = p.fetcher.FetchBatch(ctx, token)
	if errors.Is(err, client.ErrUnauthorized) {
		return nil, fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return batch, err
}

func (p *Pipeline) token(ctx context.Context) (string, error) {
	token, err := p.auth.EnsureValidToken(ctx)
	if errors.Is(err, auth.ErrUnauthorized) {
		return "", fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}
	return token, err
}
