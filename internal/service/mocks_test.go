package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/cache"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/cycle"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/patient"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/domain/screening"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/events"
	"github.com/dmehra2102/prod-golang-projects/childscreen/internal/identity"
	"github.com/dmehra2102/prod-golang-projects/childscreen/pkg/metrics"
)

// -- Mock Repositories --

type mockPatientRepo struct {
	patients map[string]*patient.Patient
	counts   map[uuid.UUID]int64
	lists    int
	deletes  int
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[string]*patient.Patient), counts: make(map[uuid.UUID]int64)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *patient.Patient) error {
	if _, ok := m.patients[p.ChildCode]; ok {
		return patient.ErrPatientAlreadyExists
	}
	p.ID = uuid.New()
	p.CreatedAt = time.Now().Add(time.Duration(len(m.patients)) * time.Millisecond)
	m.patients[p.ChildCode] = p
	return nil
}

func (m *mockPatientRepo) CreateBatch(ctx context.Context, patients []*patient.Patient) error {
	for _, p := range patients {
		if _, ok := m.patients[p.ChildCode]; ok {
			return patient.ErrPatientAlreadyExists
		}
	}
	for _, p := range patients {
		_ = m.Create(ctx, p)
	}
	return nil
}

func (m *mockPatientRepo) GetByChildCode(_ context.Context, code string) (*patient.Patient, error) {
	p, ok := m.patients[code]
	if !ok {
		return nil, patient.ErrPatientNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatientRepo) Save(_ context.Context, p *patient.Patient) error {
	for code, existing := range m.patients {
		if existing.ID == p.ID {
			delete(m.patients, code)
		}
	}
	m.patients[p.ChildCode] = p
	return nil
}

func (m *mockPatientRepo) DeleteByChildCodes(_ context.Context, codes []string) (int64, error) {
	m.deletes++
	var n int64
	for _, c := range codes {
		if _, ok := m.patients[c]; ok {
			delete(m.patients, c)
			n++
		}
	}
	return n, nil
}

func (m *mockPatientRepo) List(_ context.Context, q *patient.ListPatientsQuery) ([]*patient.Summary, error) {
	m.lists++
	var out []*patient.Summary
	for _, p := range m.patients {
		if q.Search != "" && !strings.Contains(strings.ToLower(p.FullName()+" "+p.ChildCode), strings.ToLower(q.Search)) {
			continue
		}
		out = append(out, &patient.Summary{Patient: *p, ScreenCount: m.counts[p.ID]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockPatientRepo) ExistingChildCodes(_ context.Context, codes []string, excludeID *uuid.UUID) ([]string, error) {
	var taken []string
	for _, c := range codes {
		if p, ok := m.patients[c]; ok && (excludeID == nil || p.ID != *excludeID) {
			taken = append(taken, c)
		}
	}
	return taken, nil
}

type mockCycleRepo struct {
	cycles  map[uuid.UUID]*cycle.Cycle
	deletes int
}

func newMockCycleRepo() *mockCycleRepo {
	return &mockCycleRepo{cycles: make(map[uuid.UUID]*cycle.Cycle)}
}

func (m *mockCycleRepo) Create(_ context.Context, c *cycle.Cycle) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	m.cycles[c.ID] = c
	return nil
}

func (m *mockCycleRepo) GetByID(_ context.Context, id uuid.UUID) (*cycle.Cycle, error) {
	c, ok := m.cycles[id]
	if !ok {
		return nil, cycle.ErrCycleNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *mockCycleRepo) GetActive(_ context.Context) (*cycle.Cycle, error) {
	for _, c := range m.cycles {
		if c.Active {
			return c, nil
		}
	}
	return nil, cycle.ErrNoActiveCycle
}

func (m *mockCycleRepo) List(_ context.Context) ([]*cycle.Cycle, error) {
	out := make([]*cycle.Cycle, 0, len(m.cycles))
	for _, c := range m.cycles {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *mockCycleRepo) SetActive(_ context.Context, id uuid.UUID) (*cycle.Cycle, error) {
	target, ok := m.cycles[id]
	if !ok {
		return nil, cycle.ErrCycleNotFound
	}
	for _, c := range m.cycles {
		c.Active = false
	}
	now := time.Now()
	target.Active = true
	target.ActivatedAt = &now
	cp := *target
	return &cp, nil
}

func (m *mockCycleRepo) Deactivate(_ context.Context, ids ...uuid.UUID) error {
	for _, id := range ids {
		if c, ok := m.cycles[id]; ok {
			c.Active = false
		}
	}
	return nil
}

func (m *mockCycleRepo) Rename(_ context.Context, id uuid.UUID, name string) (*cycle.Cycle, error) {
	c, ok := m.cycles[id]
	if !ok {
		return nil, cycle.ErrCycleNotFound
	}
	c.Name = name
	cp := *c
	return &cp, nil
}

func (m *mockCycleRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.deletes++
	if _, ok := m.cycles[id]; !ok {
		return cycle.ErrCycleNotFound
	}
	delete(m.cycles, id)
	return nil
}

func (m *mockCycleRepo) activeCount() int {
	n := 0
	for _, c := range m.cycles {
		if c.Active {
			n++
		}
	}
	return n
}

type recordKey struct{ patient, cycle uuid.UUID }

type mockScreeningRepo struct {
	records map[recordKey]*screening.Record
	saves   []domain.Section
}

func newMockScreeningRepo() *mockScreeningRepo {
	return &mockScreeningRepo{records: make(map[recordKey]*screening.Record)}
}

func (m *mockScreeningRepo) Get(_ context.Context, patientID, cycleID uuid.UUID) (*screening.Record, error) {
	r, ok := m.records[recordKey{patientID, cycleID}]
	if !ok {
		return nil, screening.ErrRecordNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *mockScreeningRepo) SaveSection(_ context.Context, r *screening.Record, s domain.Section) error {
	m.saves = append(m.saves, s)
	cp := *r
	m.records[recordKey{r.PatientID, r.CycleID}] = &cp
	return nil
}

func (m *mockScreeningRepo) ListByCycle(_ context.Context, cycleID uuid.UUID) (map[uuid.UUID]*screening.Record, error) {
	out := make(map[uuid.UUID]*screening.Record)
	for k, r := range m.records {
		if k.cycle == cycleID {
			out[k.patient] = r
		}
	}
	return out, nil
}

type mockProfileRepo struct {
	profiles map[uuid.UUID]*domain.Profile
	deleted  []uuid.UUID
	getCalls int
	err      error
}

func newMockProfileRepo() *mockProfileRepo {
	return &mockProfileRepo{profiles: make(map[uuid.UUID]*domain.Profile)}
}

func (m *mockProfileRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.Profile, error) {
	m.getCalls++
	p, ok := m.profiles[id]
	if !ok {
		return nil, domain.ErrProfileNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockProfileRepo) List(_ context.Context) ([]*domain.StaffMember, error) {
	var out []*domain.StaffMember
	for _, p := range m.profiles {
		out = append(out, &domain.StaffMember{Profile: *p})
	}
	return out, nil
}

func (m *mockProfileRepo) Save(_ context.Context, p *domain.Profile) error {
	cp := *p
	m.profiles[p.ID] = &cp
	return nil
}

func (m *mockProfileRepo) Delete(_ context.Context, id uuid.UUID) error {
	if m.err != nil {
		return m.err
	}
	m.deleted = append(m.deleted, id)
	delete(m.profiles, id)
	return nil
}

type mockUserRepo struct {
	users    map[uuid.UUID]*domain.User
	profiles *mockProfileRepo
	attempts []bool
}

func newMockUserRepo(profiles *mockProfileRepo) *mockUserRepo {
	return &mockUserRepo{users: make(map[uuid.UUID]*domain.User), profiles: profiles}
}

func (m *mockUserRepo) CreateWithProfile(_ context.Context, u *domain.User, p *domain.Profile) error {
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return domain.ErrEmailTaken
		}
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	p.ID = u.ID
	m.users[u.ID] = u
	m.profiles.profiles[p.ID] = p
	return nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m *mockUserRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

func (m *mockUserRepo) UpdateLoginAttempt(_ context.Context, id uuid.UUID, success bool, maxAttempts int, lockFor time.Duration) error {
	m.attempts = append(m.attempts, success)
	u := m.users[id]
	if success {
		u.FailedLoginCount = 0
		return nil
	}
	u.FailedLoginCount++
	if u.FailedLoginCount >= maxAttempts {
		until := time.Now().Add(lockFor)
		u.LockedUntil = &until
	}
	return nil
}

func (m *mockUserRepo) UpdatePassword(_ context.Context, id uuid.UUID, hash string) error {
	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	return nil
}

func (m *mockUserRepo) DeleteWithProfile(_ context.Context, id uuid.UUID) error {
	if _, ok := m.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.users, id)
	delete(m.profiles.profiles, id)
	return nil
}

type mockAuditRepo struct {
	mu      sync.Mutex
	entries []*domain.AuditLog
}

func (m *mockAuditRepo) Create(_ context.Context, e *domain.AuditLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

type fakeIdentity struct {
	createErr error
	resetErr  error
	deleteErr error
	created   []identity.CreateUserRequest
	resets    int
	deletes   int
	tokens    []string
}

func (f *fakeIdentity) CreateUser(_ context.Context, token string, req identity.CreateUserRequest) (uuid.UUID, error) {
	f.tokens = append(f.tokens, token)
	if f.createErr != nil {
		return uuid.Nil, f.createErr
	}
	f.created = append(f.created, req)
	return uuid.New(), nil
}

func (f *fakeIdentity) ResetPassword(_ context.Context, token string, _ uuid.UUID, _ string) error {
	f.tokens = append(f.tokens, token)
	f.resets++
	return f.resetErr
}

func (f *fakeIdentity) DeleteUser(_ context.Context, token string, _ uuid.UUID) error {
	f.tokens = append(f.tokens, token)
	f.deletes++
	return f.deleteErr
}

type recordingPublisher struct {
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.Event) error {
	p.events = append(p.events, ev)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []events.Type {
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

// -- Fixtures --

type fixture struct {
	metrics    *metrics.Collector
	auditRepo  *mockAuditRepo
	audit      *AuditService
	publisher  *recordingPublisher
	log        *zap.Logger
	patients   *mockPatientRepo
	cycles     *mockCycleRepo
	records    *mockScreeningRepo
	patientSvc *PatientService
	cycleSvc   *CycleService
	screenSvc  *ScreeningService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		metrics:   metrics.NewCollector("test", prometheus.NewRegistry()),
		auditRepo: &mockAuditRepo{},
		publisher: &recordingPublisher{},
		log:       zap.NewNop(),
		patients:  newMockPatientRepo(),
		cycles:    newMockCycleRepo(),
		records:   newMockScreeningRepo(),
	}
	f.audit = NewAuditService(f.auditRepo, f.metrics, f.log)
	t.Cleanup(f.audit.Shutdown)

	f.patientSvc = NewPatientService(PatientServiceDeps{
		Repo:       f.patients,
		Lists:      cache.New[[]*patient.Summary]("patients", time.Minute, nil),
		Previews:   cache.New[*ImportPreview]("previews", time.Minute, nil),
		PreviewTTL: time.Minute,
		Publisher:  f.publisher,
		AuditSvc:   f.audit,
		Metrics:    f.metrics,
		Log:        f.log,
	})
	f.cycleSvc = NewCycleService(f.cycles, cache.New[[]*cycle.Cycle]("cycles", time.Minute, nil),
		f.publisher, f.audit, f.metrics, f.log)
	f.screenSvc = NewScreeningService(f.records, f.patients, f.cycleSvc, f.patientSvc,
		f.publisher, f.audit, f.metrics, f.log)
	return f
}

var (
	adminActor = Actor{UserID: uuid.New(), Role: domain.RoleAdmin, Token: "admin-token"}
)

func clinician(section domain.Section) Actor {
	return Actor{UserID: uuid.New(), Role: domain.RoleClinician, Section: &section, Token: "clinician-token"}
}

func (f *fixture) addPatient(t *testing.T, code string) *patient.Patient {
	t.Helper()
	p, err := f.patientSvc.CreatePatient(context.Background(), patient.Fields{
		ChildCode: code, FirstName: "ama", LastName: "mensah", Community: "kumasi",
		DateOfBirth: "2018-04-10", Sex: "F",
	}, adminActor)
	if err != nil {
		t.Fatalf("create patient %s: %v", code, err)
	}
	return p
}

func (f *fixture) activeCycle(t *testing.T) *cycle.Cycle {
	t.Helper()
	c, err := f.cycleSvc.CreateCycle(context.Background(), "2026 Q1", adminActor)
	if err != nil {
		t.Fatalf("create cycle: %v", err)
	}
	c, err = f.cycleSvc.SetActive(context.Background(), c.ID, adminActor)
	if err != nil {
		t.Fatalf("activate cycle: %v", err)
	}
	return c
}
