package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

var raj = domain.Driver{ID: "drv-1", Name: "Raj", Number: "9876543210"}

func newTestTrackingService(store *memLocationStore, clock *fakeClock) *TrackingService {
	opts := TrackingOptions{
		PollInterval:  10 * time.Millisecond,
		SampleTimeout: 50 * time.Millisecond,
	}
	if clock != nil {
		opts.Now = clock.Now
	}
	return NewTrackingService(store, newStubDriverRepo(), newStubChangeNotifier(), opts, zerolog.Nop())
}

// ─── StartTracking ────────────────────────────────────────────────────────────

func TestTrackingService_StartTracking_WatchThenPoll(t *testing.T) {
	store := newMemLocationStore()
	clock := newFakeClock(1000)
	svc := newTestTrackingService(store, clock)
	src := newFakeSource()
	src.samples <- domain.Sample{Latitude: 23.4123, Longitude: 85.4399}

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Stop()

	got := store.current()
	if got == nil {
		t.Fatal("expected a location after start")
	}
	want := domain.BusLocation{
		Latitude: 23.4123, Longitude: 85.4399, Timestamp: 1000,
		DriverName: "Raj", DriverNumber: "9876543210",
	}
	if *got != want {
		t.Fatalf("location = %+v, want %+v", *got, want)
	}

	clock.Set(6000)
	src.queuePoll(domain.Sample{Latitude: 23.4130, Longitude: 85.4405})

	waitFor(t, "poll write", func() bool {
		loc := store.current()
		return loc != nil && loc.Timestamp == 6000
	})

	got = store.current()
	if got.Latitude != 23.4130 || got.Longitude != 85.4405 {
		t.Errorf("poll sample not written: %+v", *got)
	}
	if got.DriverName != "Raj" || got.DriverNumber != "9876543210" {
		t.Errorf("driver fields lost on overwrite: %+v", *got)
	}
}

func TestTrackingService_StartTracking_LastWriteWins(t *testing.T) {
	store := newMemLocationStore()
	clock := newFakeClock(1000)
	svc := newTestTrackingService(store, clock)
	src := newFakeSource()
	src.samples <- domain.Sample{Latitude: 1, Longitude: 1}

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Stop()

	clock.Set(2000)
	src.samples <- domain.Sample{Latitude: 2, Longitude: 2}
	waitFor(t, "second watch write", func() bool {
		loc := store.current()
		return loc != nil && loc.Latitude == 2
	})

	if n := store.writeCount(); n < 2 {
		t.Errorf("expected at least 2 writes, got %d", n)
	}
	if got := store.current(); got.Timestamp != 2000 {
		t.Errorf("timestamp = %d, want 2000", got.Timestamp)
	}
}

func TestTrackingService_StartTracking_PermissionDenied(t *testing.T) {
	store := newMemLocationStore()
	svc := newTestTrackingService(store, nil)
	src := newFakeSource()
	src.errs <- domain.ErrGeolocationDenied

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if !errors.Is(err, domain.ErrGeolocationDenied) {
		t.Fatalf("expected ErrGeolocationDenied, got %v", err)
	}
	if sess != nil {
		t.Fatal("expected no session")
	}
	if store.writeCount() != 0 {
		t.Error("nothing should be written when the first sample fails")
	}
}

func TestTrackingService_StartTracking_WatchUnavailable(t *testing.T) {
	svc := newTestTrackingService(newMemLocationStore(), nil)
	src := newFakeSource()
	src.watchErr = domain.ErrGeolocationUnavailable

	_, err := svc.StartTracking(context.Background(), raj, src)
	if !errors.Is(err, domain.ErrGeolocationUnavailable) {
		t.Fatalf("expected ErrGeolocationUnavailable, got %v", err)
	}
}

func TestTrackingService_StartTracking_NoSource(t *testing.T) {
	svc := newTestTrackingService(newMemLocationStore(), nil)

	_, err := svc.StartTracking(context.Background(), raj, nil)
	if !errors.Is(err, domain.ErrGeolocationUnavailable) {
		t.Fatalf("expected ErrGeolocationUnavailable, got %v", err)
	}
}

func TestTrackingService_StartTracking_InvalidDriver(t *testing.T) {
	svc := newTestTrackingService(newMemLocationStore(), nil)

	_, err := svc.StartTracking(context.Background(), domain.Driver{Name: "  ", Number: "1"}, newFakeSource())
	if !errors.Is(err, domain.ErrInvalidDriver) {
		t.Fatalf("expected ErrInvalidDriver, got %v", err)
	}
}

func TestTrackingService_StartTracking_CancelledBeforeFirstSample(t *testing.T) {
	svc := newTestTrackingService(newMemLocationStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.StartTracking(ctx, raj, newFakeSource())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTrackingService_StartTracking_WriteFailureKeepsTracking(t *testing.T) {
	store := newMemLocationStore()
	store.setErr = errors.New("redis down")
	svc := newTestTrackingService(store, nil)
	src := newFakeSource()
	src.samples <- domain.Sample{Latitude: 1, Longitude: 1}

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if err != nil {
		t.Fatalf("write failures must not abort tracking: %v", err)
	}
	defer sess.Stop()

	select {
	case <-sess.Done():
		t.Fatal("session should still be running")
	default:
	}
}

func TestTrackingService_StartTracking_SampleErrorsContinue(t *testing.T) {
	store := newMemLocationStore()
	clock := newFakeClock(1000)
	svc := newTestTrackingService(store, clock)
	src := newFakeSource()
	src.samples <- domain.Sample{Latitude: 1, Longitude: 1}

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sess.Stop()

	src.errs <- domain.ErrPositionUnavailable
	clock.Set(3000)
	src.samples <- domain.Sample{Latitude: 3, Longitude: 3}

	waitFor(t, "write after sample error", func() bool {
		loc := store.current()
		return loc != nil && loc.Latitude == 3
	})
}

// ─── Stop ─────────────────────────────────────────────────────────────────────

func TestTrackingSession_Stop_Idempotent(t *testing.T) {
	store := newMemLocationStore()
	svc := newTestTrackingService(store, nil)
	src := newFakeSource()
	src.samples <- domain.Sample{Latitude: 1, Longitude: 1}

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess.Stop()
	sess.Stop()

	select {
	case <-sess.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Stop")
	}
	if sess.Driver().Name != "Raj" {
		t.Errorf("Driver() = %+v", sess.Driver())
	}
}

func TestTrackingSession_Stop_NoFurtherWrites(t *testing.T) {
	store := newMemLocationStore()
	svc := newTestTrackingService(store, nil)
	src := newFakeSource()
	src.samples <- domain.Sample{Latitude: 1, Longitude: 1}

	sess, err := svc.StartTracking(context.Background(), raj, src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sess.Stop()
	time.Sleep(30 * time.Millisecond)
	before := store.writeCount()

	src.samples <- domain.Sample{Latitude: 9, Longitude: 9}
	src.queuePoll(domain.Sample{Latitude: 8, Longitude: 8})
	time.Sleep(50 * time.Millisecond)

	if after := store.writeCount(); after != before {
		t.Errorf("writes after stop: before=%d after=%d", before, after)
	}
	if loc := store.current(); loc.Latitude != 1 {
		t.Errorf("last value changed after stop: %+v", *loc)
	}
}

// ─── Location reads ───────────────────────────────────────────────────────────

func TestTrackingService_CurrentLocation_Empty(t *testing.T) {
	svc := newTestTrackingService(newMemLocationStore(), nil)

	loc, err := svc.CurrentLocation(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc != nil {
		t.Fatalf("expected nil location, got %+v", loc)
	}
}

func TestTrackingService_SubscribeToLocation(t *testing.T) {
	store := newMemLocationStore()
	svc := newTestTrackingService(store, nil)

	var seen []*domain.BusLocation
	sub, err := svc.SubscribeToLocation(context.Background(), func(loc *domain.BusLocation) {
		seen = append(seen, loc)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_ = store.Set(context.Background(), domain.BusLocation{Latitude: 5, Timestamp: 1})
	sub.Unsubscribe()
	sub.Unsubscribe()
	_ = store.Set(context.Background(), domain.BusLocation{Latitude: 6, Timestamp: 2})

	if len(seen) != 2 {
		t.Fatalf("expected 2 callbacks (initial nil + one write), got %d", len(seen))
	}
	if seen[0] != nil {
		t.Errorf("initial callback should carry nil, got %+v", seen[0])
	}
	if seen[1].Latitude != 5 {
		t.Errorf("second callback = %+v", seen[1])
	}
}

// ─── Driver registry ──────────────────────────────────────────────────────────

func TestTrackingService_SaveDriver_GeneratesIDAndNotifies(t *testing.T) {
	repo := newStubDriverRepo()
	notifier := newStubChangeNotifier()
	svc := NewTrackingService(newMemLocationStore(), repo, notifier, TrackingOptions{}, zerolog.Nop())

	d, err := svc.SaveDriver(context.Background(), domain.Driver{Name: " Raj ", Number: "9876543210"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID == "" {
		t.Fatal("expected generated id")
	}
	if d.Name != "Raj" {
		t.Errorf("name not trimmed: %q", d.Name)
	}
	if _, err := repo.FindByID(context.Background(), d.ID); err != nil {
		t.Errorf("driver not persisted: %v", err)
	}
	if notifier.notified != 1 {
		t.Errorf("expected 1 notification, got %d", notifier.notified)
	}
}

func TestTrackingService_SaveDriver_RepoFailure(t *testing.T) {
	repo := newStubDriverRepo()
	repo.upsertErr = errors.New("mongo down")
	svc := NewTrackingService(newMemLocationStore(), repo, newStubChangeNotifier(), TrackingOptions{}, zerolog.Nop())

	_, err := svc.SaveDriver(context.Background(), raj)
	if !errors.Is(err, domain.ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
}

func TestTrackingService_SaveDriver_Invalid(t *testing.T) {
	svc := newTestTrackingService(newMemLocationStore(), nil)

	_, err := svc.SaveDriver(context.Background(), domain.Driver{Name: "Raj"})
	if !errors.Is(err, domain.ErrInvalidDriver) {
		t.Fatalf("expected ErrInvalidDriver, got %v", err)
	}
}

func TestTrackingService_SubscribeToDrivers(t *testing.T) {
	repo := newStubDriverRepo(raj)
	notifier := newStubChangeNotifier()
	svc := NewTrackingService(newMemLocationStore(), repo, notifier, TrackingOptions{}, zerolog.Nop())

	var snapshots [][]domain.Driver
	sub, err := svc.SubscribeToDrivers(context.Background(), func(ds []domain.Driver) {
		snapshots = append(snapshots, ds)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Unsubscribe()

	if len(snapshots) != 1 || len(snapshots[0]) != 1 {
		t.Fatalf("expected initial snapshot with 1 driver, got %v", snapshots)
	}

	if _, err := svc.SaveDriver(context.Background(), domain.Driver{Name: "Amit", Number: "9123456780"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snapshots) != 2 || len(snapshots[1]) != 2 {
		t.Fatalf("expected second snapshot with 2 drivers, got %v", snapshots)
	}
}

func TestTrackingService_SubscribeToDrivers_LoadFailureKeepsPrevious(t *testing.T) {
	repo := newStubDriverRepo(raj)
	notifier := newStubChangeNotifier()
	svc := NewTrackingService(newMemLocationStore(), repo, notifier, TrackingOptions{}, zerolog.Nop())

	calls := 0
	sub, err := svc.SubscribeToDrivers(context.Background(), func([]domain.Driver) { calls++ })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer sub.Unsubscribe()

	repo.listErr = errors.New("mongo down")
	_ = notifier.Notify(context.Background())

	if calls != 1 {
		t.Errorf("callback should not fire on load failure, calls=%d", calls)
	}
}

func TestTrackingService_ListDrivers_Failure(t *testing.T) {
	repo := newStubDriverRepo()
	repo.listErr = errors.New("mongo down")
	svc := NewTrackingService(newMemLocationStore(), repo, newStubChangeNotifier(), TrackingOptions{}, zerolog.Nop())

	_, err := svc.ListDrivers(context.Background())
	if !errors.Is(err, domain.ErrRegistryUnavailable) {
		t.Fatalf("expected ErrRegistryUnavailable, got %v", err)
	}
}
