package processor

import (
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
)

// StateChangeFunc observes circuit breaker transitions for a processor.
type StateChangeFunc func(name string, from, to gobreaker.State)

type Factory struct {
	processors      map[string]Processor
	circuitBreakers map[string]*gobreaker.CircuitBreaker[*Charge]
	onStateChange   StateChangeFunc
}

type FactoryOption func(*Factory)

func WithStateChange(fn StateChangeFunc) FactoryOption {
	return func(f *Factory) { f.onStateChange = fn }
}

func NewFactory(opts ...FactoryOption) *Factory {
	f := &Factory{
		processors:      make(map[string]Processor),
		circuitBreakers: make(map[string]*gobreaker.CircuitBreaker[*Charge]),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Factory) Register(p Processor) {
	f.processors[p.Name()] = p
	f.circuitBreakers[p.Name()] = gobreaker.NewCircuitBreaker[*Charge](gobreaker.Settings{
		Name:        p.Name(),
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 10 && failureRatio >= 0.6
		},
		// A declined card is a healthy processor.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, domainErrors.ErrChargeDeclined) || errors.Is(err, domainErrors.ErrChargeNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if f.onStateChange != nil {
				f.onStateChange(name, from, to)
			}
		},
	})
}

func (f *Factory) Get(name string) (Processor, *gobreaker.CircuitBreaker[*Charge], error) {
	p, ok := f.processors[name]
	if !ok {
		return nil, nil, fmt.Errorf("unknown processor %q: %w", name, domainErrors.ErrProcessorNotFound)
	}
	return p, f.circuitBreakers[name], nil
}

// Names lists registered processors.
func (f *Factory) Names() []string {
	names := make([]string, 0, len(f.processors))
	for n := range f.processors {
		names = append(names, n)
	}
	return names
}

// Unavailable maps breaker rejections to ErrProcessorUnavailable and passes
// every other error through.
func Unavailable(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", domainErrors.ErrProcessorUnavailable, err)
	}
	return err
}
