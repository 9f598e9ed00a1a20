package clubhouse_test

import (
	"context"
	"database/sql"
	"regexp"
	"sync"
	"time"

	"github.com/castellan/clubhouse"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// testConfig implements clubhouse.Config with sensible test defaults.
type testConfig struct {
	signingKey  string
	retiredKeys []string
	issuer      string
	sessionTTL  time.Duration
	codeTTL     time.Duration
	attempts    int
	requestMax  int
	inviteTTL   time.Duration
	maxMembers  int
	region      string
}

func newTestConfig() *testConfig {
	return &testConfig{
		signingKey: "test-signing-key-needs-enough-bytes",
		issuer:     "clubhouse-test",
		sessionTTL: 30 * 24 * time.Hour,
		codeTTL:    5 * time.Minute,
		attempts:   3,
		requestMax: 3,
		maxMembers: 200,
		region:     "US",
	}
}

func (c *testConfig) GetSigningKey() string               { return c.signingKey }
func (c *testConfig) GetRetiredSigningKeys() []string     { return c.retiredKeys }
func (c *testConfig) GetIssuer() string                   { return c.issuer }
func (c *testConfig) GetContextKey() string               { return "session" }
func (c *testConfig) GetCookieName() string               { return "clubhouse_session" }
func (c *testConfig) GetSessionTTL() time.Duration        { return c.sessionTTL }
func (c *testConfig) GetCodeTTL() time.Duration           { return c.codeTTL }
func (c *testConfig) GetCodeAttempts() int                { return c.attempts }
func (c *testConfig) GetCodeRequestMax() int              { return c.requestMax }
func (c *testConfig) GetCodeRequestWindow() time.Duration { return 10 * time.Minute }
func (c *testConfig) GetInviteTTL() time.Duration         { return c.inviteTTL }
func (c *testConfig) GetMaxMembers() int                  { return c.maxMembers }
func (c *testConfig) GetDefaultRegion() string            { return c.region }
func (c *testConfig) GetSiteName() string                 { return "Clubhouse" }
func (c *testConfig) IsProduction() bool                  { return false }

// MockLogger implements clubhouse.Logger for testing
type MockLogger struct {
	mock.Mock
}

func (m *MockLogger) Debug(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Info(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Warn(format string, args ...any) {
	m.Called(format, args)
}

func (m *MockLogger) Error(format string, args ...any) {
	m.Called(format, args)
}

var codeInMessage = regexp.MustCompile(`\b(\d{6})\b`)

// capturingDispatcher records sent messages so tests can fish the code out of
// the SMS text the same way a user would.
type capturingDispatcher struct {
	mu       sync.Mutex
	sends    []sentMessage
	failWith error
}

type sentMessage struct {
	Phone   string
	Message string
}

func (d *capturingDispatcher) Send(_ context.Context, phone, message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWith != nil {
		return d.failWith
	}
	d.sends = append(d.sends, sentMessage{Phone: phone, Message: message})
	return nil
}

// lastCode extracts the verification code from the most recent message.
func (d *capturingDispatcher) lastCode() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.sends) == 0 {
		return ""
	}
	return codeInMessage.FindString(d.sends[len(d.sends)-1].Message)
}

func (d *capturingDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sends)
}

// memCodes is an in-memory VerificationCodes store mirroring the conditional
// update semantics of the real one.
type memCodes struct {
	mu      sync.Mutex
	records map[string]*clubhouse.VerificationCode
	now     func() time.Time
}

func newMemCodes() *memCodes {
	return &memCodes{
		records: map[string]*clubhouse.VerificationCode{},
		now:     time.Now,
	}
}

func (s *memCodes) Put(_ context.Context, phone, codeHash string, ttl time.Duration, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.records[phone] = &clubhouse.VerificationCode{
		Phone:        phone,
		CodeHash:     codeHash,
		ExpiresAt:    now.Add(ttl),
		AttemptsLeft: attempts,
		CreatedAt:    &now,
	}
	return nil
}

func (s *memCodes) Get(_ context.Context, phone string) (*clubhouse.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok {
		return nil, clubhouse.ErrNoActiveCode
	}
	clone := *record
	return &clone, nil
}

func (s *memCodes) Consume(_ context.Context, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok || record.Consumed || !s.now().Before(record.ExpiresAt) {
		return false, nil
	}
	record.Consumed = true
	return true, nil
}

func (s *memCodes) SpendAttempt(_ context.Context, phone string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[phone]
	if !ok || record.Consumed || record.AttemptsLeft <= 0 {
		return 0, clubhouse.ErrNoActiveCode
	}
	record.AttemptsLeft--
	return record.AttemptsLeft, nil
}

func (s *memCodes) Invalidate(_ context.Context, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, phone)
	return nil
}

func (s *memCodes) PurgeExpired(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	purged := 0
	for phone, record := range s.records {
		if !cutoff.Before(record.ExpiresAt) {
			delete(s.records, phone)
			purged++
		}
	}
	return purged, nil
}

var _ clubhouse.VerificationCodes = (*memCodes)(nil)

// memInvites is an in-memory Invites store. The embedded interface covers the
// generic repository methods the tests never reach.
type memInvites struct {
	clubhouse.Invites

	mu      sync.Mutex
	records map[string]*clubhouse.InviteCode
}

func newMemInvites() *memInvites {
	return &memInvites{records: map[string]*clubhouse.InviteCode{}}
}

func (s *memInvites) seed(code string, createdAt time.Time) *clubhouse.InviteCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	record := &clubhouse.InviteCode{
		ID:        uuid.New(),
		Code:      code,
		CreatedAt: &createdAt,
	}
	s.records[code] = record
	return record
}

func (s *memInvites) GetByCode(ctx context.Context, code string) (*clubhouse.InviteCode, error) {
	return s.GetByCodeTx(ctx, nil, code)
}

func (s *memInvites) GetByCodeTx(_ context.Context, _ bun.IDB, code string) (*clubhouse.InviteCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[code]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	clone := *record
	return &clone, nil
}

func (s *memInvites) Create(ctx context.Context, record *clubhouse.InviteCode, criteria ...repository.InsertCriteria) (*clubhouse.InviteCode, error) {
	return s.CreateTx(ctx, nil, record, criteria...)
}

func (s *memInvites) CreateTx(_ context.Context, _ bun.IDB, record *clubhouse.InviteCode, _ ...repository.InsertCriteria) (*clubhouse.InviteCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.Code]; exists {
		return nil, errUniqueViolation
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
	s.records[record.Code] = record
	clone := *record
	return &clone, nil
}

func (s *memInvites) Redeem(ctx context.Context, code string, memberID uuid.UUID) (bool, error) {
	return s.RedeemTx(ctx, nil, code, memberID)
}

func (s *memInvites) RedeemTx(_ context.Context, _ bun.IDB, code string, memberID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[code]
	if !ok || record.RedeemedBy != nil {
		return false, nil
	}
	now := time.Now()
	record.RedeemedBy = &memberID
	record.RedeemedAt = &now
	return true, nil
}

func (s *memInvites) ListOpen(_ context.Context) ([]*clubhouse.InviteCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*clubhouse.InviteCode
	for _, record := range s.records {
		if record.RedeemedBy == nil {
			clone := *record
			open = append(open, &clone)
		}
	}
	return open, nil
}

// memMembers is an in-memory Members store with the same duplicate-phone
// behavior as the real one.
type memMembers struct {
	clubhouse.Members

	mu      sync.Mutex
	byPhone map[string]*clubhouse.Member
	byID    map[uuid.UUID]*clubhouse.Member
	handles map[string]bool
}

func newMemMembers() *memMembers {
	return &memMembers{
		byPhone: map[string]*clubhouse.Member{},
		byID:    map[uuid.UUID]*clubhouse.Member{},
		handles: map[string]bool{},
	}
}

func (s *memMembers) seed(phone, name string, role clubhouse.MemberRole) *clubhouse.Member {
	member := &clubhouse.Member{
		ID:     uuid.New(),
		Phone:  phone,
		Name:   name,
		Role:   role,
		Status: clubhouse.StatusActive,
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byPhone[phone] = member
	s.byID[member.ID] = member
	return member
}

func (s *memMembers) GetByPhone(ctx context.Context, phone string) (*clubhouse.Member, error) {
	return s.GetByPhoneTx(ctx, nil, phone)
}

func (s *memMembers) GetByPhoneTx(_ context.Context, _ bun.IDB, phone string) (*clubhouse.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.byPhone[phone]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	clone := *member
	return &clone, nil
}

func (s *memMembers) GetByID(_ context.Context, id string, _ ...repository.SelectCriteria) (*clubhouse.Member, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, repository.NewRecordNotFound()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.byID[parsed]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	clone := *member
	return &clone, nil
}

func (s *memMembers) Create(ctx context.Context, record *clubhouse.Member, criteria ...repository.InsertCriteria) (*clubhouse.Member, error) {
	return s.CreateTx(ctx, nil, record, criteria...)
}

func (s *memMembers) CreateTx(_ context.Context, _ bun.IDB, record *clubhouse.Member, _ ...repository.InsertCriteria) (*clubhouse.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byPhone[record.Phone]; exists {
		return nil, clubhouse.ErrPhoneAlreadyRegistered
	}
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	record.EnsureStatus()
	clone := *record
	s.byPhone[record.Phone] = &clone
	s.byID[record.ID] = &clone
	return record, nil
}

func (s *memMembers) CountActive(ctx context.Context) (int, error) {
	return s.CountActiveTx(ctx, nil)
}

func (s *memMembers) CountActiveTx(_ context.Context, _ bun.IDB) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, member := range s.byPhone {
		if member.Status == clubhouse.StatusActive {
			count++
		}
	}
	return count, nil
}

func (s *memMembers) UpdateStatus(_ context.Context, id uuid.UUID, status clubhouse.MemberStatus) (*clubhouse.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	member, ok := s.byID[id]
	if !ok {
		return nil, repository.NewRecordNotFound()
	}
	member.Status = status
	clone := *member
	return &clone, nil
}

func (s *memMembers) MarkWelcomed(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if member, ok := s.byID[id]; ok {
		member.FirstLogin = false
	}
	return nil
}

func (s *memMembers) ReserveHandle(_ context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	handle := name
	if s.handles[handle] {
		handle = name + "-2"
	}
	s.handles[handle] = true
	return handle, nil
}

// fakeRepoManager wires the in-memory stores behind the RepositoryManager
// interface. RunInTx runs the body directly; the fakes have no rollback, so
// tests that need rollback behavior assert on the error path instead.
type fakeRepoManager struct {
	members *memMembers
	invites *memInvites
	codes   *memCodes
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		members: newMemMembers(),
		invites: newMemInvites(),
		codes:   newMemCodes(),
	}
}

func (m *fakeRepoManager) Validate() error { return nil }
func (m *fakeRepoManager) MustValidate()   {}

func (m *fakeRepoManager) RunInTx(ctx context.Context, _ *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	return f(ctx, bun.Tx{})
}

func (m *fakeRepoManager) Members() clubhouse.Members                     { return m.members }
func (m *fakeRepoManager) Invites() clubhouse.Invites                     { return m.invites }
func (m *fakeRepoManager) VerificationCodes() clubhouse.VerificationCodes { return m.codes }

var _ clubhouse.RepositoryManager = (*fakeRepoManager)(nil)

// MockAuthenticator implements clubhouse.Authenticator
type MockAuthenticator struct {
	mock.Mock
}

func (m *MockAuthenticator) StartSignIn(ctx context.Context, rawPhone string) error {
	args := m.Called(ctx, rawPhone)
	return args.Error(0)
}

func (m *MockAuthenticator) CompleteSignIn(ctx context.Context, rawPhone, code string) (string, error) {
	args := m.Called(ctx, rawPhone, code)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) StartSignUp(ctx context.Context, inviteCode string) (*clubhouse.InviteCode, error) {
	args := m.Called(ctx, inviteCode)
	invite, _ := args.Get(0).(*clubhouse.InviteCode)
	return invite, args.Error(1)
}

func (m *MockAuthenticator) RequestSignUpCode(ctx context.Context, inviteCode, rawPhone string) error {
	args := m.Called(ctx, inviteCode, rawPhone)
	return args.Error(0)
}

func (m *MockAuthenticator) CompleteSignUp(ctx context.Context, req clubhouse.SignUpRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockAuthenticator) SessionFromToken(raw string) (clubhouse.Session, error) {
	args := m.Called(raw)
	session, _ := args.Get(0).(clubhouse.Session)
	return session, args.Error(1)
}

func (m *MockAuthenticator) MemberFromSession(ctx context.Context, session clubhouse.Session) (*clubhouse.Member, error) {
	args := m.Called(ctx, session)
	member, _ := args.Get(0).(*clubhouse.Member)
	return member, args.Error(1)
}

func (m *MockAuthenticator) RequireRole(ctx context.Context, session clubhouse.Session, role clubhouse.MemberRole) (*clubhouse.Member, error) {
	args := m.Called(ctx, session, role)
	member, _ := args.Get(0).(*clubhouse.Member)
	return member, args.Error(1)
}

var _ clubhouse.Authenticator = (*MockAuthenticator)(nil)

// errUniqueViolation mimics the driver error text the repos sniff for.
var errUniqueViolation = &uniqueViolationError{}

type uniqueViolationError struct{}

func (e *uniqueViolationError) Error() string {
	return "UNIQUE constraint failed: invite_codes.code"
}
