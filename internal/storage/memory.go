package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/cuongbtq/booking-dispatch/internal/booking"
	"github.com/cuongbtq/booking-dispatch/internal/domain"
	"github.com/cuongbtq/booking-dispatch/internal/eligibility"
)

// Memory is an in-process Store. Transactions are serialized and roll back
// to a snapshot on error. It backs tests and local runs without PostgreSQL.
type Memory struct {
	txMu sync.Mutex
	mu   sync.Mutex

	jobs        map[int64]domain.Job
	assignments []domain.Assignment
	markers     []domain.ReopenMarker
	audit       []domain.AuditEntry
	translators map[int64]domain.Translator
	customers   map[int64]domain.Customer
	blacklists  map[int64][]int64

	nextJobID   int64
	nextAsgID   int64
	nextAuditID int64
}

var _ booking.Store = (*Memory)(nil)

// NewMemory creates an empty Memory store
func NewMemory() *Memory {
	return &Memory{
		jobs:        make(map[int64]domain.Job),
		translators: make(map[int64]domain.Translator),
		customers:   make(map[int64]domain.Customer),
		blacklists:  make(map[int64][]int64),
	}
}

type memorySnapshot struct {
	jobs        map[int64]domain.Job
	assignments []domain.Assignment
	markers     []domain.ReopenMarker
	audit       []domain.AuditEntry
	nextJobID   int64
	nextAsgID   int64
	nextAuditID int64
}

func (m *Memory) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	jobs := make(map[int64]domain.Job, len(m.jobs))
	for id, j := range m.jobs {
		jobs[id] = *j.Clone()
	}
	return memorySnapshot{
		jobs:        jobs,
		assignments: append([]domain.Assignment(nil), m.assignments...),
		markers:     append([]domain.ReopenMarker(nil), m.markers...),
		audit:       append([]domain.AuditEntry(nil), m.audit...),
		nextJobID:   m.nextJobID,
		nextAsgID:   m.nextAsgID,
		nextAuditID: m.nextAuditID,
	}
}

func (m *Memory) restore(s memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.jobs = s.jobs
	m.assignments = s.assignments
	m.markers = s.markers
	m.audit = s.audit
	m.nextJobID = s.nextJobID
	m.nextAsgID = s.nextAsgID
	m.nextAuditID = s.nextAuditID
}

// memoryTx is the Store handed to WithinTx callbacks
type memoryTx struct {
	*Memory
}

func (t memoryTx) WithinTx(ctx context.Context, fn func(tx booking.Store) error) error {
	return fn(t)
}

// WithinTx runs fn with every other transaction held off
func (m *Memory) WithinTx(ctx context.Context, fn func(tx booking.Store) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := m.snapshot()
	if err := fn(memoryTx{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

// AddTranslator seeds a translator
func (m *Memory) AddTranslator(t domain.Translator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t.LanguageIDs = append([]int64(nil), t.LanguageIDs...)
	m.translators[t.ID] = t
}

// AddCustomer seeds a customer
func (m *Memory) AddCustomer(c domain.Customer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = c
}

// BlockTranslator adds translatorID to the customer's blacklist
func (m *Memory) BlockTranslator(customerID, translatorID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blacklists[customerID] = append(m.blacklists[customerID], translatorID)
}

// PutJob stores job as is, assigning an id when it has none
func (m *Memory) PutJob(job domain.Job) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if job.ID == 0 {
		m.nextJobID++
		job.ID = m.nextJobID
	} else if job.ID > m.nextJobID {
		m.nextJobID = job.ID
	}
	m.jobs[job.ID] = *job.Clone()
	return job.ID
}

// Assignments returns the job's assignment history in creation order
func (m *Memory) Assignments(jobID int64) []domain.Assignment {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Assignment
	for _, a := range m.assignments {
		if a.JobID == jobID {
			out = append(out, a)
		}
	}
	return out
}

// AuditEntries returns the job's audit trail
func (m *Memory) AuditEntries(jobID int64) []domain.AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range m.audit {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out
}

// ReopenMarkers returns every recorded reopen
func (m *Memory) ReopenMarkers() []domain.ReopenMarker {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.ReopenMarker(nil), m.markers...)
}

func (m *Memory) GetJob(ctx context.Context, id int64) (*domain.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	return job.Clone(), nil
}

// GetJobForUpdate is GetJob; transactions are already serialized
func (m *Memory) GetJobForUpdate(ctx context.Context, id int64) (*domain.Job, error) {
	return m.GetJob(ctx, id)
}

func (m *Memory) CreateJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextJobID++
	job.ID = m.nextJobID
	m.jobs[job.ID] = *job.Clone()
	return nil
}

func (m *Memory) UpdateJob(ctx context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[job.ID]; !ok {
		return domain.ErrJobNotFound
	}
	m.jobs[job.ID] = *job.Clone()
	return nil
}

func (m *Memory) UpdateJobStatusIf(ctx context.Context, id int64, from, to domain.JobStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status != from {
		return false, nil
	}
	job.Status = to
	m.jobs[id] = job
	return true, nil
}

func (m *Memory) ListPendingJobs(ctx context.Context) ([]domain.Job, error) {
	return m.listJobs(func(j *domain.Job) bool {
		return j.Status == domain.StatusPending
	}), nil
}

func (m *Memory) ListExpiredPending(ctx context.Context, now time.Time) ([]domain.Job, error) {
	return m.listJobs(func(j *domain.Job) bool {
		return j.Status == domain.StatusPending && !j.ExpiryNotified && !j.WillExpireAt.After(now)
	}), nil
}

func (m *Memory) listJobs(keep func(j *domain.Job) bool) []domain.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Job, 0)
	for _, j := range m.jobs {
		if keep(&j) {
			out = append(out, *j.Clone())
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

func (m *Memory) ActiveAssignment(ctx context.Context, jobID int64) (*domain.Assignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.assignments {
		if m.assignments[i].JobID == jobID && m.assignments[i].Active() {
			a := m.assignments[i]
			return &a, nil
		}
	}
	return nil, nil
}

// CreateAssignment refuses a second active assignment for the same job
func (m *Memory) CreateAssignment(ctx context.Context, a *domain.Assignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.Active() {
		for _, existing := range m.assignments {
			if existing.JobID == a.JobID && existing.Active() {
				return ErrActiveAssignmentExists
			}
		}
	}
	m.nextAsgID++
	a.ID = m.nextAsgID
	m.assignments = append(m.assignments, *a)
	return nil
}

func (m *Memory) CancelAssignment(ctx context.Context, id int64, at time.Time) (bool, error) {
	return m.stampAssignment(id, func(a *domain.Assignment) {
		a.CancelAt = &at
	}), nil
}

func (m *Memory) CompleteAssignment(ctx context.Context, id int64, by int64, at time.Time) (bool, error) {
	return m.stampAssignment(id, func(a *domain.Assignment) {
		a.CompletedAt = &at
		a.CompletedBy = &by
	}), nil
}

func (m *Memory) stampAssignment(id int64, stamp func(a *domain.Assignment)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.assignments {
		if m.assignments[i].ID == id {
			if !m.assignments[i].Active() {
				return false
			}
			stamp(&m.assignments[i])
			return true
		}
	}
	return false
}

func (m *Memory) TranslatorBusyAt(ctx context.Context, translatorID int64, due time.Time, excludeJobID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.assignments {
		if a.TranslatorID != translatorID || a.JobID == excludeJobID || !a.Active() {
			continue
		}
		if job, ok := m.jobs[a.JobID]; ok && job.Due.Equal(due) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) CreateReopenMarker(ctx context.Context, marker *domain.ReopenMarker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.markers = append(m.markers, *marker)
	return nil
}

func (m *Memory) AppendAudit(ctx context.Context, e *domain.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAuditID++
	e.ID = m.nextAuditID
	entry := *e
	entry.Changes = append([]domain.ChangeDescriptor(nil), e.Changes...)
	m.audit = append(m.audit, entry)
	return nil
}

func (m *Memory) GetTranslator(ctx context.Context, id int64) (*domain.Translator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.translators[id]
	if !ok {
		return nil, domain.ErrTranslatorNotFound
	}
	return copyTranslator(t), nil
}

func (m *Memory) GetTranslatorByEmail(ctx context.Context, email string) (*domain.Translator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.translators {
		if strings.EqualFold(t.Email, email) {
			return copyTranslator(t), nil
		}
	}
	return nil, domain.ErrTranslatorNotFound
}

func copyTranslator(t domain.Translator) *domain.Translator {
	t.LanguageIDs = append([]int64(nil), t.LanguageIDs...)
	return &t
}

func (m *Memory) GetCustomer(ctx context.Context, id int64) (*domain.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, domain.ErrCustomerNotFound
	}
	return &c, nil
}

func (m *Memory) Blacklist(ctx context.Context, customerID int64) (eligibility.Blacklist, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return eligibility.NewBlacklist(m.blacklists[customerID]...), nil
}

// Roster applies the pool query. Opt-outs, town and blacklist rules are left
// to the eligibility filter.
func (m *Memory) Roster(ctx context.Context, q eligibility.PoolQuery) ([]domain.Translator, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	excluded := eligibility.NewBlacklist(q.ExcludeIDs...)
	out := make([]domain.Translator, 0)
	for _, t := range m.translators {
		if t.RoleID != q.RoleID || !t.Active || t.Type != q.TranslatorType {
			continue
		}
		if excluded.Contains(t.ID) || !t.Speaks(q.LanguageID) {
			continue
		}
		if q.Gender != domain.GenderAny && t.Gender != q.Gender {
			continue
		}
		if !containsLevel(q.Levels, t.Level) {
			continue
		}
		out = append(out, *copyTranslator(t))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func containsLevel(levels []domain.TranslatorLevel, l domain.TranslatorLevel) bool {
	for _, level := range levels {
		if level == l {
			return true
		}
	}
	return false
}
