package payments

import (
	"context"
	"errors"
	"sync"
)

// ErrDeclined means the processor refused the charge. It is an ordinary
// outcome, distinct from transport failures.
var ErrDeclined = errors.New("charge declined")

// Processor settles a booking's frozen amount. Charge and Refund are
// synchronous from the coordinator's point of view and may be slow; the
// coordinator never calls them while holding inventory state.
type Processor interface {
	Charge(ctx context.Context, reference string, amount int64) error
	Refund(ctx context.Context, reference string, amount int64) error
}

// Static is a processor with a fixed answer, for development and tests.
type Static struct {
	Approve bool

	mu      sync.Mutex
	charges []string
	refunds []string
}

func NewStatic(approve bool) *Static {
	return &Static{Approve: approve}
}

func (s *Static) Charge(ctx context.Context, reference string, amount int64) error {
	if !s.Approve {
		return ErrDeclined
	}
	s.mu.Lock()
	s.charges = append(s.charges, reference)
	s.mu.Unlock()
	return nil
}

func (s *Static) Refund(ctx context.Context, reference string, amount int64) error {
	s.mu.Lock()
	s.refunds = append(s.refunds, reference)
	s.mu.Unlock()
	return nil
}

// Charges returns the references charged so far.
func (s *Static) Charges() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.charges...)
}

// Refunds returns the references refunded so far.
func (s *Static) Refunds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.refunds...)
}
