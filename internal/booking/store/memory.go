// internal/booking/store/memory.go
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"booking-workers/internal/common/errors"
	"booking-workers/internal/models"
)

// MemoryStore is an in-process Store used by tests and local development.
// The per-session critical section is a mutex keyed by session id, so
// operations on different sessions never contend.
type MemoryStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.Session
	enrollments map[string]map[string]*models.Enrollment
	events      []*models.NotificationEvent
	eventByID   map[string]*models.NotificationEvent
	locks       map[string]*sync.Mutex
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*models.Session),
		enrollments: make(map[string]map[string]*models.Enrollment),
		eventByID:   make(map[string]*models.NotificationEvent),
		locks:       make(map[string]*sync.Mutex),
	}
}

func (m *MemoryStore) CreateSession(_ context.Context, s *models.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = copySession(s)
	if _, ok := m.enrollments[s.ID]; !ok {
		m.enrollments[s.ID] = make(map[string]*models.Enrollment)
	}
	return nil
}

func (m *MemoryStore) GetSession(_ context.Context, id string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, errors.NewSessionNotFoundError(id)
	}
	return copySession(s), nil
}

func (m *MemoryStore) sessionLock(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[id] = lock
	}
	return lock
}

func (m *MemoryStore) Atomic(_ context.Context, sessionID string, fn func(tx SessionTx) error) error {
	lock := m.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	sess, ok := m.sessions[sessionID]
	if !ok {
		m.mu.Unlock()
		return errors.NewSessionNotFoundError(sessionID)
	}
	tx := &memTx{
		session:     copySession(sess),
		enrollments: make(map[string]*models.Enrollment, len(m.enrollments[sessionID])),
	}
	for id, e := range m.enrollments[sessionID] {
		tx.enrollments[id] = copyEnrollment(e)
	}
	m.mu.Unlock()

	if err := fn(tx); err != nil {
		return err
	}

	// Commit staged state.
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[sessionID] = tx.session
	m.enrollments[sessionID] = tx.enrollments
	for _, evt := range tx.events {
		staged := copyEvent(evt)
		m.events = append(m.events, staged)
		m.eventByID[staged.ID] = staged
	}
	return nil
}

func (m *MemoryStore) PendingEvents(_ context.Context, limit int) ([]*models.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.NotificationEvent, 0, limit)
	for _, evt := range m.events {
		if evt.PublishedAt != nil {
			continue
		}
		out = append(out, copyEvent(evt))
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) MarkPublished(_ context.Context, eventID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.eventByID[eventID]
	if !ok {
		return errors.NewEnrollmentNotFoundError(eventID)
	}
	ts := at
	evt.PublishedAt = &ts
	return nil
}

func (m *MemoryStore) Event(_ context.Context, id string) (*models.NotificationEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.eventByID[id]
	if !ok {
		return nil, errors.NewEnrollmentNotFoundError(id)
	}
	return copyEvent(evt), nil
}

func (m *MemoryStore) UpdateEventDelivery(_ context.Context, eventID string, status models.DeliveryStatus, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt, ok := m.eventByID[eventID]
	if !ok {
		return errors.NewEnrollmentNotFoundError(eventID)
	}
	evt.DeliveryStatus = status
	evt.Attempts = attempts
	return nil
}

func (m *MemoryStore) DueSessions(_ context.Context, now time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	due := make([]*models.Session, 0)
	for _, s := range m.sessions {
		if (s.Status == models.SessionOpen || s.Status == models.SessionFull) && !s.StartsAt.After(now) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].StartsAt.Before(due[j].StartsAt) })
	if len(due) > limit {
		due = due[:limit]
	}
	ids := make([]string, len(due))
	for i, s := range due {
		ids[i] = s.ID
	}
	return ids, nil
}

// Events returns every outbox row in append order. Test helper.
func (m *MemoryStore) Events() []*models.NotificationEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.NotificationEvent, len(m.events))
	for i, evt := range m.events {
		out[i] = copyEvent(evt)
	}
	return out
}

// memTx stages one session's mutations; Atomic applies them on success.
type memTx struct {
	session     *models.Session
	enrollments map[string]*models.Enrollment
	events      []*models.NotificationEvent
}

func (t *memTx) Session() *models.Session { return t.session }

func (t *memTx) UpdateSession(s *models.Session) error {
	t.session = copySession(s)
	return nil
}

func (t *memTx) ConfirmedCount() (int, error) {
	count := 0
	for _, e := range t.enrollments {
		if e.Status == models.EnrollmentConfirmed {
			count++
		}
	}
	return count, nil
}

func (t *memTx) ActiveEnrollmentFor(participantID string) (*models.Enrollment, error) {
	for _, e := range t.enrollments {
		if e.ParticipantID == participantID && e.Active() {
			return copyEnrollment(e), nil
		}
	}
	return nil, nil
}

func (t *memTx) Enrollment(id string) (*models.Enrollment, error) {
	e, ok := t.enrollments[id]
	if !ok {
		return nil, errors.NewEnrollmentNotFoundError(id)
	}
	return copyEnrollment(e), nil
}

func (t *memTx) InsertEnrollment(e *models.Enrollment) error {
	t.enrollments[e.ID] = copyEnrollment(e)
	return nil
}

func (t *memTx) UpdateEnrollment(e *models.Enrollment) error {
	if _, ok := t.enrollments[e.ID]; !ok {
		return errors.NewEnrollmentNotFoundError(e.ID)
	}
	t.enrollments[e.ID] = copyEnrollment(e)
	return nil
}

func (t *memTx) ActiveEnrollments() ([]*models.Enrollment, error) {
	out := make([]*models.Enrollment, 0)
	for _, e := range t.enrollments {
		if e.Active() {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t *memTx) MaxWaitlistPos() (int, error) {
	max := 0
	for _, e := range t.enrollments {
		if e.Status == models.EnrollmentWaitlisted && e.WaitlistPos > max {
			max = e.WaitlistPos
		}
	}
	return max, nil
}

func (t *memTx) WaitlistHead() (*models.Enrollment, error) {
	var head *models.Enrollment
	for _, e := range t.enrollments {
		if e.Status != models.EnrollmentWaitlisted {
			continue
		}
		if head == nil || e.WaitlistPos < head.WaitlistPos {
			head = e
		}
	}
	if head == nil {
		return nil, nil
	}
	return copyEnrollment(head), nil
}

func (t *memTx) Waitlist() ([]*models.Enrollment, error) {
	out := make([]*models.Enrollment, 0)
	for _, e := range t.enrollments {
		if e.Status == models.EnrollmentWaitlisted {
			out = append(out, copyEnrollment(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WaitlistPos < out[j].WaitlistPos })
	return out, nil
}

func (t *memTx) ShiftWaitlistAfter(pos int) error {
	for _, e := range t.enrollments {
		if e.Status == models.EnrollmentWaitlisted && e.WaitlistPos > pos {
			e.WaitlistPos--
		}
	}
	return nil
}

func (t *memTx) AppendEvent(evt *models.NotificationEvent) error {
	t.events = append(t.events, copyEvent(evt))
	return nil
}

func copySession(s *models.Session) *models.Session {
	c := *s
	return &c
}

func copyEnrollment(e *models.Enrollment) *models.Enrollment {
	c := *e
	if e.CancelledAt != nil {
		ts := *e.CancelledAt
		c.CancelledAt = &ts
	}
	return &c
}

func copyEvent(evt *models.NotificationEvent) *models.NotificationEvent {
	c := *evt
	if evt.PublishedAt != nil {
		ts := *evt.PublishedAt
		c.PublishedAt = &ts
	}
	if evt.Payload != nil {
		c.Payload = make(map[string]interface{}, len(evt.Payload))
		for k, v := range evt.Payload {
			c.Payload[k] = v
		}
	}
	return &c
}
