// Package dashboard keeps the latest estimation frame for one currency pair,
// refreshing it from the upstream provider when the cached frame goes stale.
package dashboard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rewired-gh/pppwatch/internal/estimator"
	"github.com/rewired-gh/pppwatch/internal/logger"
	"github.com/rewired-gh/pppwatch/internal/models"
)

// SeriesProvider retrieves one indicator series for a country over [from, to].
type SeriesProvider interface {
	FetchIndicator(ctx context.Context, country, indicator string, from, to int) (models.Series, error)
}

// FrameCache persists the most recently computed frame.
// Load returns a nil frame when nothing is cached, along with the time the
// cached frame was computed.
type FrameCache interface {
	Load() (*models.Frame, time.Time, error)
	Store(frame *models.Frame) error
}

// Pair describes the series that feed the estimator.
type Pair struct {
	Label          string
	CountryA       string
	CountryB       string
	PriceIndicator string
	RateIndicator  string
	StartYear      int
}

// Config controls refresh behavior.
type Config struct {
	Pair         Pair
	StalenessLag int
}

// Stale reports whether a frame ending at lastIndex is older than the current
// period allows: annual indicators trail the calendar by lag years.
func Stale(lastIndex int, now time.Time, lag int) bool {
	return lastIndex < now.Year()-lag
}

// Service owns the latest good frame. It is safe for concurrent use.
type Service struct {
	provider SeriesProvider
	cache    FrameCache
	config   Config
	now      func() time.Time

	mu       sync.RWMutex
	latest   *models.Frame
	loaded   bool
	computed time.Time

	refreshMu sync.Mutex
}

// New creates a service. cache may be nil to disable persistence.
func New(provider SeriesProvider, cache FrameCache, config Config) *Service {
	return &Service{
		provider: provider,
		cache:    cache,
		config:   config,
		now:      time.Now,
	}
}

// Latest returns the last successfully computed or loaded frame, or nil.
func (s *Service) Latest() *models.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// LastComputed returns when Latest was computed; zero if never or unknown.
func (s *Service) LastComputed() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.computed
}

// Pair returns the configured pair.
func (s *Service) Pair() Pair {
	return s.config.Pair
}

// Refresh returns the current frame, recomputing it only when it is stale or absent.
// The boolean is true when a new frame was computed.
func (s *Service) Refresh(ctx context.Context) (*models.Frame, bool, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.loadCached()

	if current := s.Latest(); current != nil {
		last, _ := current.LastIndex()
		if !Stale(last, s.now(), s.config.StalenessLag) {
			logger.Debug("Frame for %s is current (last index %d)", s.config.Pair.Label, last)
			return current, false, nil
		}
		logger.Info("Frame for %s is stale (last index %d), recomputing", s.config.Pair.Label, last)
	}

	frame, err := s.recompute(ctx)
	if err != nil {
		return nil, false, err
	}
	return frame, true, nil
}

// Recompute fetches fresh inputs and replaces the latest frame regardless of staleness.
func (s *Service) Recompute(ctx context.Context) (*models.Frame, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	return s.recompute(ctx)
}

// loadCached seeds the in-memory frame from the cache once.
func (s *Service) loadCached() {
	if s.loaded || s.cache == nil {
		return
	}
	s.loaded = true

	frame, computedAt, err := s.cache.Load()
	if err != nil {
		logger.Warn("Failed to load cached frame: %v", err)
		return
	}
	if frame == nil || frame.Len() == 0 {
		logger.Info("No cached frame for %s", s.config.Pair.Label)
		return
	}
	last, _ := frame.LastIndex()
	logger.Info("Loaded cached frame for %s (%d rows, last index %d)", s.config.Pair.Label, frame.Len(), last)
	s.install(frame, computedAt)
}

func (s *Service) recompute(ctx context.Context) (*models.Frame, error) {
	p := s.config.Pair
	to := s.now().Year()

	var priceA, priceB, rate models.Series
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		priceA, err = s.provider.FetchIndicator(gctx, p.CountryA, p.PriceIndicator, p.StartYear, to)
		return err
	})
	g.Go(func() (err error) {
		priceB, err = s.provider.FetchIndicator(gctx, p.CountryB, p.PriceIndicator, p.StartYear, to)
		return err
	})
	g.Go(func() (err error) {
		rate, err = s.provider.FetchIndicator(gctx, p.CountryA, p.RateIndicator, p.StartYear, to)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to fetch inputs for %s: %w", p.Label, err)
	}
	logger.Debug("Fetched %d/%d/%d points for %s", len(priceA), len(priceB), len(rate), p.Label)

	frame, err := estimator.Estimate(priceA, priceB, rate)
	if err != nil {
		return nil, fmt.Errorf("failed to estimate %s: %w", p.Label, err)
	}

	if s.cache != nil {
		if err := s.cache.Store(frame); err != nil {
			logger.Warn("Failed to cache frame for %s: %v", p.Label, err)
		}
	}
	s.install(frame, s.now())

	last, _ := frame.LastIndex()
	logger.Info("Computed frame for %s: %d rows, last index %d", p.Label, frame.Len(), last)
	return frame, nil
}

func (s *Service) install(frame *models.Frame, computedAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest = frame
	s.computed = computedAt
}
