package app

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/amirasaad/btcfx/pkg/debounce"
	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/amirasaad/btcfx/pkg/exchange"
)

const (
	DefaultDebounceWait    = 300 * time.Millisecond
	DefaultDebounceMaxWait = time.Second
)

// State is the user input a Session compares.
type State struct {
	Source    string
	Target    string
	Amount    float64
	Threshold float64
}

// Session holds the snapshots and the last comparison for one user. Input
// changes are debounced; the resulting comparison is emitted on the bus.
type Session struct {
	app       *App
	debouncer *debounce.Debouncer

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.Mutex
	state        State
	prices       domain.BitcoinPrices
	rates        domain.ForexRates
	result       *domain.Comparison
	err          error
	needsRefresh bool
	// pairGen counts pair changes so a refresh started for an older pair
	// can drop its snapshots.
	pairGen uint64
}

// NewSession creates a Session for the pair. Debounced work runs under ctx
// until Close is called.
func (a *App) NewSession(ctx context.Context, source, target string, amount float64) *Session {
	wait, maxWait := DefaultDebounceWait, DefaultDebounceMaxWait
	if a.Config != nil && a.Config.Debounce.Wait > 0 {
		wait, maxWait = a.Config.Debounce.Wait, a.Config.Debounce.MaxWait
	}
	ctx, cancel := context.WithCancel(ctx)
	return &Session{
		app:       a,
		debouncer: debounce.New(wait, maxWait),
		ctx:       ctx,
		cancel:    cancel,
		state: State{
			Source:    strings.ToUpper(strings.TrimSpace(source)),
			Target:    strings.ToUpper(strings.TrimSpace(target)),
			Amount:    amount,
			Threshold: a.threshold(),
		},
		needsRefresh: true,
	}
}

// State returns the current input.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Refresh fetches both feeds concurrently and keeps whatever succeeded. The
// comparison is recomputed right away when both snapshots are present. If
// the pair changes while the fetch is in flight its results are discarded
// and the session stays marked for refresh.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	st := s.state
	gen := s.pairGen
	s.mu.Unlock()

	snap, priceErr, rateErr := s.app.fetchBoth(ctx, []string{st.Source, st.Target}, st.Source, false)

	s.mu.Lock()
	if gen != s.pairGen {
		s.mu.Unlock()
		s.app.Deps.Logger.Debug("Dropping refresh for superseded pair", "pair", st.Source+"/"+st.Target)
		return errors.Join(priceErr, rateErr)
	}
	if priceErr == nil {
		s.prices = snap.Prices
	}
	if rateErr == nil {
		s.rates = snap.Rates
	}
	if priceErr == nil && rateErr == nil {
		s.needsRefresh = false
	}
	s.mu.Unlock()

	s.feedResult(ctx, FeedBitcoin, priceErr)
	s.feedResult(ctx, FeedForex, rateErr)

	s.recompute(ctx)
	return errors.Join(priceErr, rateErr)
}

func (s *Session) feedResult(ctx context.Context, feed string, err error) {
	if err != nil {
		s.app.emit(ctx, newFeedFailed(feed, err))
		return
	}
	s.app.emit(ctx, PricesUpdated{Feed: feed})
}

// SetAmount changes the amount and schedules a recomputation.
func (s *Session) SetAmount(amount float64) error {
	if math.IsNaN(amount) || amount < 0 {
		return domain.Errorf(domain.KindInvalidInput, "amount must be a non-negative number")
	}
	s.mu.Lock()
	s.state.Amount = amount
	s.mu.Unlock()
	s.schedule()
	return nil
}

// SetPair changes the currency pair. The next recomputation refreshes the
// feeds first.
func (s *Session) SetPair(source, target string) error {
	source = strings.ToUpper(strings.TrimSpace(source))
	target = strings.ToUpper(strings.TrimSpace(target))
	if source == "" || target == "" {
		return domain.Errorf(domain.KindInvalidInput, "source and target currencies are required")
	}
	s.mu.Lock()
	changed := source != s.state.Source || target != s.state.Target
	s.state.Source, s.state.Target = source, target
	if changed {
		s.needsRefresh = true
		s.pairGen++
	}
	s.mu.Unlock()
	s.schedule()
	return nil
}

// SetThreshold changes the arbitrage threshold in percent.
func (s *Session) SetThreshold(threshold float64) error {
	if math.IsNaN(threshold) || threshold < 0 {
		return domain.Errorf(domain.KindInvalidInput, "threshold must be a non-negative number")
	}
	s.mu.Lock()
	s.state.Threshold = threshold
	s.mu.Unlock()
	s.schedule()
	return nil
}

func (s *Session) schedule() {
	s.debouncer.Call(func() {
		s.mu.Lock()
		refresh := s.needsRefresh
		s.mu.Unlock()
		if refresh {
			// Refresh recomputes on its own.
			_ = s.Refresh(s.ctx)
			return
		}
		s.recompute(s.ctx)
	})
}

// Flush runs a pending recomputation immediately.
func (s *Session) Flush() {
	s.debouncer.Flush()
}

// Comparison returns the last computed comparison and the error of the last
// attempt. Both are nil until the first recomputation.
func (s *Session) Comparison() (*domain.Comparison, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.result == nil {
		return nil, s.err
	}
	c := *s.result
	return &c, s.err
}

// Close drops pending work and cancels in-flight debounced fetches.
func (s *Session) Close() {
	s.debouncer.Stop()
	s.cancel()
}

// recompute runs the comparator when both snapshots are present.
func (s *Session) recompute(ctx context.Context) {
	s.mu.Lock()
	st := s.state
	prices, rates := s.prices, s.rates
	s.mu.Unlock()
	if prices == nil || rates.Rates == nil {
		return
	}

	c, err := exchange.CompareRates(st.Source, st.Target, st.Amount, prices, rates,
		exchange.WithThreshold(st.Threshold))

	s.mu.Lock()
	s.err = err
	if err == nil {
		s.result = c
	}
	s.mu.Unlock()

	if err != nil {
		s.app.Deps.Logger.Debug("Comparison not computed", "pair", st.Source+"/"+st.Target, "error", err)
		return
	}
	s.app.emit(ctx, ComparisonComputed{Comparison: *c})
}
