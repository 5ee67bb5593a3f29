package service

import (
	"sync"

	"roomscan/internal/modules/capture/domain"
	captureout "roomscan/internal/modules/capture/port/out"
)

type event struct {
	sessionID string
	input     domain.Input
	room      *domain.CapturedRoom
	err       error
}

type session struct {
	id     string
	reply  func(domain.Outcome)
	events chan event
	closed chan struct{}

	view    captureout.CaptureView
	capture captureout.CaptureSession

	closeOnce    sync.Once
	teardownOnce sync.Once
	replyOnce    sync.Once

	mu            sync.Mutex
	state         domain.State
	resultPending bool
	result        *domain.CapturedRoom
}

func newSession(id string, reply func(domain.Outcome)) *session {
	return &session{
		id:     id,
		reply:  reply,
		events: make(chan event, eventBuffer),
		closed: make(chan struct{}),
		state:  domain.StateIdle,
	}
}

func (s *session) post(ev event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.closed:
		return false
	}
}

// offer is post without waiting: it drops ev when the mailbox is full. User
// input goes through offer so a busy session cannot stall the view that
// produced it.
func (s *session) offer(ev event) bool {
	select {
	case <-s.closed:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

func (s *session) currentState() domain.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) setState(state domain.State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

func (s *session) markResultPending() {
	s.mu.Lock()
	s.resultPending = true
	s.mu.Unlock()
}

func (s *session) storeResult(room *domain.CapturedRoom) {
	s.mu.Lock()
	s.result = room
	s.mu.Unlock()
}

func (s *session) storedResult() *domain.CapturedRoom {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *session) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Active:        true,
		SessionID:     s.id,
		State:         s.state,
		ResultPending: s.resultPending,
		HasResult:     s.result != nil,
	}
}
