package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"switchboard/internal/domain"
)

// Default circuit breaker settings.
const (
	defaultMaxFailures uint32        = 5
	defaultOpenTimeout time.Duration = 30 * time.Second
	defaultInterval    time.Duration = 60 * time.Second
)

// BreakerConfig configures the classifier circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure
	// counts. If 0, failures never reset until the circuit opens.
	Interval time.Duration `yaml:"interval"`
}

// Breaker wraps a domain.Classifier with circuit breaker protection. When the
// wrapped classifier fails repeatedly, the circuit opens and subsequent calls
// fail fast with ErrClassifierUnavailable instead of hammering a broken model.
type Breaker struct {
	inner   domain.Classifier
	breaker *gobreaker.CircuitBreaker[*domain.IntentClassification]
	logger  *slog.Logger
}

// NewBreaker wraps inner with a circuit breaker. Zero-valued cfg fields fall
// back to defaults.
func NewBreaker(inner domain.Classifier, cfg BreakerConfig, logger *slog.Logger) *Breaker {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultOpenTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultInterval
	}

	cb := gobreaker.NewCircuitBreaker[*domain.IntentClassification](gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			// The caller cancelling mid-classification says nothing about the
			// classifier's health; it must not trip the circuit.
			return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &Breaker{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Classify implements domain.Classifier. Calls are routed through the circuit
// breaker; an open circuit surfaces as ErrClassifierUnavailable so callers
// need no gobreaker knowledge.
func (b *Breaker) Classify(ctx context.Context, text string) (*domain.IntentClassification, error) {
	cls, err := b.breaker.Execute(func() (*domain.IntentClassification, error) {
		return b.inner.Classify(ctx, text)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, domain.NewDomainError("Breaker.Classify", domain.ErrClassifierUnavailable, "circuit open")
		}
		return nil, err
	}
	return cls, nil
}

// State returns the current circuit breaker state for monitoring.
func (b *Breaker) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the current failure/success counts.
func (b *Breaker) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}

var _ domain.Classifier = (*Breaker)(nil)
