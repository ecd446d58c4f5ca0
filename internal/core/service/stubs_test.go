package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
)

// --- location store ---

type unsubscribeFunc func()

func (f unsubscribeFunc) Unsubscribe() { f() }

type memLocationStore struct {
	mu     sync.Mutex
	loc    *domain.BusLocation
	writes []domain.BusLocation
	subs   map[int]func(*domain.BusLocation)
	nextID int
	setErr error
}

func newMemLocationStore() *memLocationStore {
	return &memLocationStore{subs: make(map[int]func(*domain.BusLocation))}
}

func (s *memLocationStore) Set(_ context.Context, loc domain.BusLocation) error {
	s.mu.Lock()
	if s.setErr != nil {
		s.mu.Unlock()
		return s.setErr
	}
	s.loc = &loc
	s.writes = append(s.writes, loc)
	fns := make([]func(*domain.BusLocation), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		v := loc
		fn(&v)
	}
	return nil
}

func (s *memLocationStore) Get(_ context.Context) (*domain.BusLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loc == nil {
		return nil, nil
	}
	v := *s.loc
	return &v, nil
}

func (s *memLocationStore) Subscribe(ctx context.Context, fn func(*domain.BusLocation)) (ports.Subscription, error) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()

	current, _ := s.Get(ctx)
	fn(current)

	return unsubscribeFunc(func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}), nil
}

func (s *memLocationStore) current() *domain.BusLocation {
	loc, _ := s.Get(context.Background())
	return loc
}

func (s *memLocationStore) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

// --- geolocation source ---

type fakeSource struct {
	samples  chan domain.Sample
	errs     chan error
	watchErr error

	mu      sync.Mutex
	polls   []domain.Sample
	pollErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		samples: make(chan domain.Sample, 8),
		errs:    make(chan error, 8),
	}
}

func (f *fakeSource) Watch(_ context.Context, _ ports.PositionOptions) (<-chan domain.Sample, <-chan error, error) {
	if f.watchErr != nil {
		return nil, nil, f.watchErr
	}
	return f.samples, f.errs, nil
}

func (f *fakeSource) CurrentPosition(_ context.Context, _ ports.PositionOptions) (domain.Sample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pollErr != nil {
		return domain.Sample{}, f.pollErr
	}
	if len(f.polls) == 0 {
		return domain.Sample{}, domain.ErrGeolocationTimeout
	}
	s := f.polls[0]
	f.polls = f.polls[1:]
	return s, nil
}

func (f *fakeSource) queuePoll(s domain.Sample) {
	f.mu.Lock()
	f.polls = append(f.polls, s)
	f.mu.Unlock()
}

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(ms int64) {
	c.mu.Lock()
	c.now = time.UnixMilli(ms)
	c.mu.Unlock()
}

// --- driver registry ---

type stubDriverRepo struct {
	mu        sync.Mutex
	drivers   map[string]domain.Driver
	upsertErr error
	listErr   error
}

func newStubDriverRepo(drivers ...domain.Driver) *stubDriverRepo {
	r := &stubDriverRepo{drivers: make(map[string]domain.Driver)}
	for _, d := range drivers {
		r.drivers[d.ID] = d
	}
	return r
}

func (r *stubDriverRepo) Upsert(_ context.Context, d domain.Driver) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.drivers[d.ID] = d
	return nil
}

func (r *stubDriverRepo) FindByID(_ context.Context, id string) (*domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[id]
	if !ok {
		return nil, domain.ErrDriverNotFound
	}
	return &d, nil
}

func (r *stubDriverRepo) List(_ context.Context) ([]domain.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]domain.Driver, 0, len(r.drivers))
	for _, d := range r.drivers {
		out = append(out, d)
	}
	return out, nil
}

// stubChangeNotifier calls watchers synchronously.
type stubChangeNotifier struct {
	mu       sync.Mutex
	watchers map[int]func()
	nextID   int
	notified int
}

func newStubChangeNotifier() *stubChangeNotifier {
	return &stubChangeNotifier{watchers: make(map[int]func())}
}

func (n *stubChangeNotifier) Notify(_ context.Context) error {
	n.mu.Lock()
	n.notified++
	fns := make([]func(), 0, len(n.watchers))
	for _, fn := range n.watchers {
		fns = append(fns, fn)
	}
	n.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
	return nil
}

func (n *stubChangeNotifier) Watch(_ context.Context, fn func()) (ports.Subscription, error) {
	n.mu.Lock()
	id := n.nextID
	n.nextID++
	n.watchers[id] = fn
	n.mu.Unlock()

	fn()
	return unsubscribeFunc(func() {
		n.mu.Lock()
		delete(n.watchers, id)
		n.mu.Unlock()
	}), nil
}

// --- users and credentials ---

type stubUserRepo struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	findErr  error
	setErr   error
	setCalls int
}

func newStubUserRepo(users ...*domain.User) *stubUserRepo {
	r := &stubUserRepo{users: make(map[string]*domain.User)}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *stubUserRepo) FindByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	u, ok := r.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *stubUserRepo) Save(_ context.Context, user *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *user
	r.users[user.ID] = &clone
	return nil
}

func (r *stubUserRepo) SetRole(_ context.Context, id string, role domain.Role) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.setCalls++
	if r.setErr != nil {
		return r.setErr
	}
	u, ok := r.users[id]
	if !ok {
		u = &domain.User{ID: id}
		r.users[id] = u
	}
	u.Role = role
	return nil
}

func (r *stubUserRepo) TouchLastLogin(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.LastLogin = at
	}
	return nil
}

func (r *stubUserRepo) get(id string) *domain.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil
	}
	clone := *u
	return &clone
}

type stubCredentialRepo struct {
	mu    sync.Mutex
	creds map[string]*domain.Credential
	err   error
}

func newStubCredentialRepo() *stubCredentialRepo {
	return &stubCredentialRepo{creds: make(map[string]*domain.Credential)}
}

func (r *stubCredentialRepo) FindByEmail(_ context.Context, email string) (*domain.Credential, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.creds[email]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *c
	return &clone, nil
}

func (r *stubCredentialRepo) Create(_ context.Context, cred *domain.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	if _, ok := r.creds[cred.Email]; ok {
		return domain.ErrUserExists
	}
	clone := *cred
	r.creds[cred.Email] = &clone
	return nil
}

func (r *stubCredentialRepo) UpdatePasswordHash(_ context.Context, email, hash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.creds[email]
	if !ok {
		return domain.ErrUserNotFound
	}
	c.PasswordHash = hash
	c.UpdatedAt = at
	return nil
}

type stubThrottle struct {
	mu       sync.Mutex
	failures map[string]int
	max      int
}

func newStubThrottle(max int) *stubThrottle {
	return &stubThrottle{failures: make(map[string]int), max: max}
}

func (t *stubThrottle) Blocked(_ context.Context, email string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failures[email] >= t.max, nil
}

func (t *stubThrottle) RecordFailure(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[email]++
	return nil
}

func (t *stubThrottle) Reset(_ context.Context, email string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, email)
	return nil
}

type stubRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newStubRevoker() *stubRevoker {
	return &stubRevoker{revoked: make(map[string]time.Duration)}
}

func (r *stubRevoker) Revoke(_ context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = ttl
	return nil
}

func (r *stubRevoker) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok, nil
}

type stubResetStore struct {
	tokens map[string]string
}

func newStubResetStore() *stubResetStore {
	return &stubResetStore{tokens: make(map[string]string)}
}

func (s *stubResetStore) Issue(_ context.Context, email string, _ time.Duration) (string, error) {
	token := "reset-" + email
	s.tokens[token] = email
	return token, nil
}

func (s *stubResetStore) Consume(_ context.Context, token string) (string, error) {
	email, ok := s.tokens[token]
	if !ok {
		return "", domain.ErrResetTokenInvalid
	}
	delete(s.tokens, token)
	return email, nil
}

// stubStateStore issues sequential states and forgets them on use.
type stubStateStore struct {
	issued map[string]bool
	next   int
	err    error
}

func newStubStateStore() *stubStateStore {
	return &stubStateStore{issued: make(map[string]bool)}
}

func (s *stubStateStore) Issue(context.Context, time.Duration) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.next++
	state := fmt.Sprintf("state-%d", s.next)
	s.issued[state] = true
	return state, nil
}

func (s *stubStateStore) Consume(_ context.Context, state string) error {
	if !s.issued[state] {
		return domain.ErrStateMismatch
	}
	delete(s.issued, state)
	return nil
}

type stubResetNotifier struct {
	sent map[string]string
}

func (n *stubResetNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	if n.sent == nil {
		n.sent = make(map[string]string)
	}
	n.sent[email] = token
	return nil
}

// stubOAuth treats the ID token string as a key into identities.
type stubOAuth struct {
	identities map[string]*domain.Identity
	verifyErr  error
}

func (o *stubOAuth) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?hd=bitmesra.ac.in&state=" + state
}

func (o *stubOAuth) Exchange(_ context.Context, code string) (string, error) {
	if code == "" {
		return "", domain.NewAuthError(domain.CodeInvalidCredential)
	}
	return "token-for-" + code, nil
}

func (o *stubOAuth) Verify(_ context.Context, idToken string) (*domain.Identity, error) {
	if o.verifyErr != nil {
		return nil, o.verifyErr
	}
	id, ok := o.identities[idToken]
	if !ok {
		return nil, domain.NewAuthError(domain.CodeInvalidCredential)
	}
	clone := *id
	return &clone, nil
}

// --- helpers ---

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func assertAuthCode(t *testing.T, err error, code domain.AuthCode) {
	t.Helper()
	var ae *domain.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError %s, got %v", code, err)
	}
	if ae.Code != code {
		t.Fatalf("expected code %s, got %s", code, ae.Code)
	}
}
