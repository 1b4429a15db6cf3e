package repository

import (
	"context"
	"sync"
	"time"

	"github.com/matchpoint/notify-engine/internal/domain"
)

// Hand-written, in-memory implementations of the repository interfaces for
// unit tests. No mock-generation library needed.

// ---- jobs ----

type MockJobRepository struct {
	mu         sync.RWMutex
	jobs       map[string]*domain.JobDefinition
	executions []*domain.JobExecution

	// Optional error overrides — set in tests to simulate failure paths.
	ListDueErr error
}

func NewMockJobRepository() *MockJobRepository {
	return &MockJobRepository{jobs: make(map[string]*domain.JobDefinition)}
}

func (m *MockJobRepository) Register(_ context.Context, job *domain.JobDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.jobs[job.Name]; ok {
		if !job.Static {
			return domain.ErrConflict
		}
		// Static re-registration keeps run bookkeeping.
		job.LastRunAt = existing.LastRunAt
		job.NextRunAt = existing.NextRunAt
	}
	clone := *job
	m.jobs[job.Name] = &clone
	return nil
}

func (m *MockJobRepository) Get(_ context.Context, name string) (*domain.JobDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	j, ok := m.jobs[name]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *j
	return &clone, nil
}

func (m *MockJobRepository) List(_ context.Context) ([]*domain.JobDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.JobDefinition, 0, len(m.jobs))
	for _, j := range m.jobs {
		clone := *j
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockJobRepository) ListDue(_ context.Context, now time.Time) ([]*domain.JobDefinition, error) {
	if m.ListDueErr != nil {
		return nil, m.ListDueErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var due []*domain.JobDefinition
	for _, j := range m.jobs {
		if j.Enabled && !j.NextRunAt.After(now) {
			clone := *j
			due = append(due, &clone)
		}
	}
	return due, nil
}

func (m *MockJobRepository) Update(_ context.Context, job *domain.JobDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.Name]; !ok {
		return domain.ErrNotFound
	}
	clone := *job
	m.jobs[job.Name] = &clone
	return nil
}

func (m *MockJobRepository) MarkExecuted(_ context.Context, name string, lastRun, nextRun time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[name]; ok {
		lr := lastRun
		j.LastRunAt = &lr
		j.NextRunAt = nextRun
	}
	return nil
}

func (m *MockJobRepository) AppendExecution(_ context.Context, exec *domain.JobExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *exec
	m.executions = append(m.executions, &clone)
	return nil
}

func (m *MockJobRepository) FinishExecution(_ context.Context, exec *domain.JobExecution) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.executions {
		if e.ID == exec.ID {
			clone := *exec
			m.executions[i] = &clone
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *MockJobRepository) ListExecutions(_ context.Context, jobName string, limit int) ([]*domain.JobExecution, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.JobExecution
	for i := len(m.executions) - 1; i >= 0 && len(out) < limit; i-- {
		if m.executions[i].JobName == jobName {
			clone := *m.executions[i]
			out = append(out, &clone)
		}
	}
	return out, nil
}

// ---- queue ----

type MockQueueRepository struct {
	mu    sync.RWMutex
	items map[string]*domain.QueueItem

	ClaimErr error
}

func NewMockQueueRepository() *MockQueueRepository {
	return &MockQueueRepository{items: make(map[string]*domain.QueueItem)}
}

func (m *MockQueueRepository) Enqueue(_ context.Context, item *domain.QueueItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *item
	m.items[item.ID] = &clone
	return nil
}

func (m *MockQueueRepository) Get(_ context.Context, id string) (*domain.QueueItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *item
	return &clone, nil
}

func (m *MockQueueRepository) ClaimDue(_ context.Context, now time.Time, limit, maxAttempts int) ([]*domain.QueueItem, error) {
	if m.ClaimErr != nil {
		return nil, m.ClaimErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var claimed []*domain.QueueItem
	for _, item := range m.items {
		if len(claimed) >= limit {
			break
		}
		if item.Status == domain.StatusPending &&
			!item.ScheduledFor.After(now) &&
			item.Attempts < maxAttempts {
			item.Status = domain.StatusProcessing
			item.Attempts++
			clone := *item
			claimed = append(claimed, &clone)
		}
	}
	sortByPriority(claimed)
	return claimed, nil
}

func (m *MockQueueRepository) ForceFailExhausted(_ context.Context, maxAttempts int) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, item := range m.items {
		if item.Status == domain.StatusPending && item.Attempts >= maxAttempts {
			item.Status = domain.StatusFailed
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) Finalize(_ context.Context, id string, status domain.Status, results []domain.ChannelResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.Status = status
		item.ChannelResults = results
		item.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (m *MockQueueRepository) IncrementOpen(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.OpenCount++
	}
	return nil
}

func (m *MockQueueRepository) IncrementClick(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if item, ok := m.items[id]; ok {
		item.ClickCount++
	}
	return nil
}

func (m *MockQueueRepository) PurgeTerminal(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, item := range m.items {
		if item.Status.IsTerminal() && item.UpdatedAt.Before(before) &&
			item.OpenCount == 0 && item.ClickCount == 0 {
			delete(m.items, id)
			n++
		}
	}
	return n, nil
}

func (m *MockQueueRepository) Stats(_ context.Context, from, to time.Time) (*domain.EngagementStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s domain.EngagementStats
	for _, item := range m.items {
		if item.CreatedAt.Before(from) || item.CreatedAt.After(to) {
			continue
		}
		switch item.Status {
		case domain.StatusSent:
			s.TotalSent++
		case domain.StatusFailed:
			s.TotalFailed++
		case domain.StatusSkipped:
			s.TotalSkipped++
		}
		s.TotalOpens += item.OpenCount
		s.TotalClicks += item.ClickCount
	}
	if s.TotalSent > 0 {
		s.OpenRate = float64(s.TotalOpens) / float64(s.TotalSent) * 100
		s.ClickRate = float64(s.TotalClicks) / float64(s.TotalSent) * 100
	}
	return &s, nil
}

// ---- templates ----

type MockTemplateRepository struct {
	mu        sync.RWMutex
	templates map[string]*domain.Template
}

func NewMockTemplateRepository() *MockTemplateRepository {
	return &MockTemplateRepository{templates: make(map[string]*domain.Template)}
}

func templateKey(trigger string, channel domain.Channel) string {
	return trigger + "|" + string(channel)
}

func (m *MockTemplateRepository) GetEnabled(_ context.Context, trigger string, channel domain.Channel) (*domain.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.templates[templateKey(trigger, channel)]
	if !ok || !t.Enabled {
		return nil, domain.ErrNotFound
	}
	clone := *t
	return &clone, nil
}

func (m *MockTemplateRepository) List(_ context.Context) ([]*domain.Template, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.Template, 0, len(m.templates))
	for _, t := range m.templates {
		clone := *t
		out = append(out, &clone)
	}
	return out, nil
}

func (m *MockTemplateRepository) Upsert(_ context.Context, tpl *domain.Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := templateKey(tpl.Trigger, tpl.Channel)
	version := 1
	if existing, ok := m.templates[key]; ok {
		version = existing.Version + 1
	}
	clone := *tpl
	clone.Version = version
	clone.UpdatedAt = time.Now().UTC()
	m.templates[key] = &clone
	return nil
}

// ---- tracking ----

type MockTrackingRepository struct {
	mu     sync.RWMutex
	Events []*domain.TrackingEvent

	InsertErr error
}

func NewMockTrackingRepository() *MockTrackingRepository {
	return &MockTrackingRepository{}
}

func (m *MockTrackingRepository) InsertOpen(_ context.Context, ev *domain.TrackingEvent) (bool, error) {
	if m.InsertErr != nil {
		return false, m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.Events {
		if e.EventType == domain.EventOpen &&
			e.TrackingID == ev.TrackingID && e.IP == ev.IP && e.UserAgent == ev.UserAgent {
			return false, nil
		}
	}
	clone := *ev
	m.Events = append(m.Events, &clone)
	return true, nil
}

func (m *MockTrackingRepository) InsertClick(_ context.Context, ev *domain.TrackingEvent) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *ev
	m.Events = append(m.Events, &clone)
	return nil
}

func (m *MockTrackingRepository) PurgeOld(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.TrackingEvent
	var n int64
	for _, e := range m.Events {
		if e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	m.Events = kept
	return n, nil
}

// ---- subscriptions ----

type MockSubscriptionRepository struct {
	mu   sync.RWMutex
	subs map[string]*domain.PushSubscription
}

func NewMockSubscriptionRepository() *MockSubscriptionRepository {
	return &MockSubscriptionRepository{subs: make(map[string]*domain.PushSubscription)}
}

func (m *MockSubscriptionRepository) Upsert(_ context.Context, sub *domain.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *sub
	clone.Active = true
	m.subs[sub.DeviceToken] = &clone
	return nil
}

func (m *MockSubscriptionRepository) Deactivate(_ context.Context, deviceToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[deviceToken]
	if !ok {
		return domain.ErrNotFound
	}
	sub.Active = false
	return nil
}

func (m *MockSubscriptionRepository) ActiveTokens(_ context.Context, recipient string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tokens []string
	for _, sub := range m.subs {
		if sub.Recipient == recipient && sub.Active {
			tokens = append(tokens, sub.DeviceToken)
		}
	}
	return tokens, nil
}
