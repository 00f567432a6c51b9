package app

import (
	"github.com/amirasaad/btcfx/pkg/domain"
	"github.com/amirasaad/btcfx/pkg/resilience"
)

const (
	EventComparisonComputed = "comparison.computed"
	EventPricesUpdated      = "prices.updated"
	EventFeedFailed         = "feed.failed"
)

// Feed names used in events.
const (
	FeedBitcoin = "bitcoin"
	FeedForex   = "forex"
)

// ComparisonComputed is emitted after every successful recomputation.
type ComparisonComputed struct {
	Comparison domain.Comparison `json:"comparison"`
}

func (ComparisonComputed) Type() string { return EventComparisonComputed }

// PricesUpdated is emitted when a feed delivered fresh data to the session.
type PricesUpdated struct {
	Feed string `json:"feed"`
}

func (PricesUpdated) Type() string { return EventPricesUpdated }

// FeedFailed is emitted when a feed could not deliver any data.
type FeedFailed struct {
	Feed        string      `json:"feed"`
	Err         error       `json:"-"`
	Error       string      `json:"error"`
	Kind        domain.Kind `json:"kind"`
	UserMessage string      `json:"user_message"`
	Recoverable bool        `json:"recoverable"`
}

func (FeedFailed) Type() string { return EventFeedFailed }

func newFeedFailed(feed string, err error) FeedFailed {
	return FeedFailed{
		Feed:        feed,
		Err:         err,
		Error:       err.Error(),
		Kind:        resilience.Classify(err),
		UserMessage: resilience.UserMessage(err),
		Recoverable: resilience.IsRecoverable(err),
	}
}
