package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/campusbus/bus-tracker/internal/core/domain"
	"github.com/campusbus/bus-tracker/internal/core/ports"
	"github.com/campusbus/bus-tracker/internal/infrastructure/ws"
)

type stubAuthService struct {
	loginDriverFn  func(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error)
	loginStudentFn func(ctx context.Context, in ports.StudentLoginInput) (*domain.Session, error)
	logoutFn       func(ctx context.Context, tokenID string, expiresAt time.Time) error
	registerFn     func(ctx context.Context, in ports.RegisterDriverInput) (*domain.User, error)
	resetFn        func(ctx context.Context, email string) error
	confirmFn      func(ctx context.Context, token, password string) error
	role           domain.Role
	authURLErr     error
}

func (s *stubAuthService) LoginDriver(ctx context.Context, email, password string, rememberMe bool) (*domain.Session, error) {
	return s.loginDriverFn(ctx, email, password, rememberMe)
}

func (s *stubAuthService) LoginStudent(ctx context.Context, in ports.StudentLoginInput) (*domain.Session, error) {
	return s.loginStudentFn(ctx, in)
}

func (s *stubAuthService) StudentAuthURL(context.Context) (string, string, error) {
	if s.authURLErr != nil {
		return "", "", s.authURLErr
	}
	return "https://accounts.example.com/auth?state=state-1", "state-1", nil
}

func (s *stubAuthService) Logout(ctx context.Context, tokenID string, expiresAt time.Time) error {
	return s.logoutFn(ctx, tokenID, expiresAt)
}

func (s *stubAuthService) ResolveRole(context.Context, domain.Identity) domain.Role {
	return s.role
}

func (s *stubAuthService) RegisterDriver(ctx context.Context, in ports.RegisterDriverInput) (*domain.User, error) {
	return s.registerFn(ctx, in)
}

func (s *stubAuthService) RequestPasswordReset(ctx context.Context, email string) error {
	return s.resetFn(ctx, email)
}

func (s *stubAuthService) ConfirmPasswordReset(ctx context.Context, token, password string) error {
	return s.confirmFn(ctx, token, password)
}

func (s *stubAuthService) CheckPassword(password string) domain.PasswordCheck {
	if password == "Secret#123" {
		return domain.PasswordCheck{Valid: true, Errors: []string{}}
	}
	return domain.PasswordCheck{Errors: []string{"Password must contain at least one number"}}
}

type stubTrackingService struct {
	startFn    func(ctx context.Context, d domain.Driver, src ports.GeolocationSource) (ports.TrackingSession, error)
	location   *domain.BusLocation
	locErr     error
	drivers    map[string]domain.Driver
	saveFn     func(ctx context.Context, d domain.Driver) (domain.Driver, error)
	listErr    error
	locFeed    *feed[*domain.BusLocation]
	driverFeed *feed[[]domain.Driver]
}

func (s *stubTrackingService) StartTracking(ctx context.Context, d domain.Driver, src ports.GeolocationSource) (ports.TrackingSession, error) {
	return s.startFn(ctx, d, src)
}

func (s *stubTrackingService) CurrentLocation(context.Context) (*domain.BusLocation, error) {
	return s.location, s.locErr
}

func (s *stubTrackingService) SubscribeToLocation(_ context.Context, fn func(*domain.BusLocation)) (ports.Subscription, error) {
	if s.locFeed != nil {
		return s.locFeed.subscribe(fn)
	}
	return nil, s.locErr
}

func (s *stubTrackingService) SaveDriver(ctx context.Context, d domain.Driver) (domain.Driver, error) {
	return s.saveFn(ctx, d)
}

func (s *stubTrackingService) FindDriver(_ context.Context, id string) (*domain.Driver, error) {
	d, ok := s.drivers[id]
	if !ok {
		return nil, domain.ErrDriverNotFound
	}
	return &d, nil
}

func (s *stubTrackingService) ListDrivers(context.Context) ([]domain.Driver, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]domain.Driver, 0, len(s.drivers))
	for _, d := range s.drivers {
		out = append(out, d)
	}
	return out, nil
}

func (s *stubTrackingService) SubscribeToDrivers(_ context.Context, fn func([]domain.Driver)) (ports.Subscription, error) {
	if s.driverFeed != nil {
		return s.driverFeed.subscribe(fn)
	}
	return nil, s.listErr
}

type unsubscribeFunc func()

func (f unsubscribeFunc) Unsubscribe() { f() }

// feed is an in-memory subscription source: new listeners get the current
// value first, then every publish.
type feed[T any] struct {
	mu      sync.Mutex
	current T
	err     error
	fns     map[int]func(T)
	nextID  int
	unsubs  int
}

func newFeed[T any](initial T) *feed[T] {
	return &feed[T]{current: initial, fns: make(map[int]func(T))}
}

func (f *feed[T]) subscribe(fn func(T)) (ports.Subscription, error) {
	f.mu.Lock()
	if f.err != nil {
		f.mu.Unlock()
		return nil, f.err
	}
	id := f.nextID
	f.nextID++
	f.fns[id] = fn
	cur := f.current
	f.mu.Unlock()

	fn(cur)
	return unsubscribeFunc(func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if _, ok := f.fns[id]; ok {
			delete(f.fns, id)
			f.unsubs++
		}
	}), nil
}

func (f *feed[T]) publish(v T) {
	f.mu.Lock()
	f.current = v
	fns := make([]func(T), 0, len(f.fns))
	for _, fn := range f.fns {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (f *feed[T]) listeners() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fns)
}

func (f *feed[T]) unsubscribed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unsubs
}

type stubSession struct {
	driver  domain.Driver
	done    chan struct{}
	once    sync.Once
	stopped int
	mu      sync.Mutex
}

func newStubSession(d domain.Driver) *stubSession {
	return &stubSession{driver: d, done: make(chan struct{})}
}

func (s *stubSession) Driver() domain.Driver { return s.driver }

func (s *stubSession) Done() <-chan struct{} { return s.done }

func (s *stubSession) Stop() {
	s.mu.Lock()
	s.stopped++
	s.mu.Unlock()
	s.once.Do(func() { close(s.done) })
}

type stubPlaceService struct {
	place string
}

func (s *stubPlaceService) Describe(context.Context, domain.BusLocation) string {
	return s.place
}

// recordingSender captures every outbound frame of a device channel.
type recordingSender struct {
	mu   sync.Mutex
	msgs []ws.Message
}

func (r *recordingSender) Send(msg ws.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recordingSender) SendEvent(event string, data any) error {
	msg, err := ws.NewMessage(event, data)
	if err != nil {
		return err
	}
	return r.Send(msg)
}

func (r *recordingSender) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.msgs))
	for _, m := range r.msgs {
		out = append(out, m.Event)
	}
	return out
}

func (r *recordingSender) last(event string) (ws.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.msgs) - 1; i >= 0; i-- {
		if r.msgs[i].Event == event {
			return r.msgs[i], true
		}
	}
	return ws.Message{}, false
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

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

// streamServer mounts an echo handler on a real listener so a gorilla
// client can dial it.
func streamServer(t *testing.T, h echo.HandlerFunc) string {
	t.Helper()
	e := newEcho()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = h(e.NewContext(r, w))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialStream(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *websocket.Conn) ws.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg ws.Message
	if err := c.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}
