// Package notificationtest records dispatched notices for assertions.
package notificationtest

import (
	"context"
	"sync"

	"github.com/smallbiznis/gymledger/internal/notification/domain"
)

type Recorder struct {
	mu      sync.Mutex
	notices []domain.Notice
	Err     error
}

func (r *Recorder) Dispatch(_ context.Context, notice domain.Notice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, notice)
	return r.Err
}

func (r *Recorder) Notices() []domain.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notice(nil), r.notices...)
}

// Kinds returns the kinds in dispatch order.
func (r *Recorder) Kinds() []domain.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]domain.Kind, 0, len(r.notices))
	for _, n := range r.notices {
		kinds = append(kinds, n.Kind)
	}
	return kinds
}
