package resource

import (
	"context"
	"sync"

	"github.com/jengzang/trailscore-backend-go/internal/models"
)

// PushSource is a FixSource fed from outside the process: the device shell
// posts its fixes and sensor errors, and they are delivered to the current
// watch. Only one watch may be open at a time.
type PushSource struct {
	mu      sync.Mutex
	handler *FixHandler
	nextID  uint64
	current uint64
}

// NewPushSource creates an idle push source
func NewPushSource() *PushSource {
	return &PushSource{}
}

// Watch registers handler as the receiver of pushed fixes
func (s *PushSource) Watch(ctx context.Context, handler FixHandler, opts WatchOptions) (Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handler != nil {
		return nil, ErrResourceBusy
	}
	s.nextID++
	s.current = s.nextID
	h := handler
	s.handler = &h

	return &pushSubscription{source: s, id: s.current}, nil
}

// Push delivers a fix to the current watch
func (s *PushSource) Push(fix models.GPSFix) error {
	h := s.active()
	if h == nil {
		return ErrNoSubscriber
	}
	if h.OnFix != nil {
		h.OnFix(fix)
	}
	return nil
}

// ReportError delivers a sensor error to the current watch
func (s *PushSource) ReportError(err error) error {
	h := s.active()
	if h == nil {
		return ErrNoSubscriber
	}
	if h.OnError != nil {
		h.OnError(err)
	}
	return nil
}

// Watching reports whether a watch is open
func (s *PushSource) Watching() bool {
	return s.active() != nil
}

func (s *PushSource) active() *FixHandler {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

type pushSubscription struct {
	source *PushSource
	id     uint64
}

// Cancel closes the watch. Canceling a stale subscription is a no-op.
func (p *pushSubscription) Cancel() error {
	p.source.mu.Lock()
	defer p.source.mu.Unlock()

	if p.source.current == p.id {
		p.source.handler = nil
		p.source.current = 0
	}
	return nil
}
