package booking_coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/suchimauz/speaker-session-booking/internal/adapters/out/logger"
	"github.com/suchimauz/speaker-session-booking/internal/core/domain"
	"github.com/suchimauz/speaker-session-booking/internal/core/services/pubsub"
)

type fakeStore struct {
	mu sync.Mutex

	speakers     map[string]domain.Speaker
	availability map[domain.SessionDate]bool
	window       domain.AvailabilityWindow

	speakerErr error
	checkErr   error
	createErr  error
	windowErr  error

	checkGates   map[domain.SessionDate]chan struct{}
	checkStarted chan domain.SessionDate
	commitGate   chan struct{}
	commitStart  chan struct{}

	checkCalls  int
	createCalls int
	windowCalls int
	created     []domain.Assignment
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		speakers: map[string]domain.Speaker{
			"spk-1": {ID: "spk-1", Name: "Ada Lovelace", Specialty: domain.SpecialtyApex, Level: "Expert"},
			"spk-2": {ID: "spk-2", Name: "Grace Hopper", Specialty: domain.SpecialtyLWC, Level: "Senior"},
		},
		availability: make(map[domain.SessionDate]bool),
		window:       make(domain.AvailabilityWindow),
		checkGates:   make(map[domain.SessionDate]chan struct{}),
	}
}

func (s *fakeStore) GetSpeaker(_ context.Context, id string) (*domain.Speaker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.speakerErr != nil {
		return nil, s.speakerErr
	}
	sp, ok := s.speakers[id]
	if !ok {
		return nil, domain.ErrSpeakerNotFound
	}
	return &sp, nil
}

func (s *fakeStore) SearchSpeakers(context.Context, domain.SpeakerFilter) ([]domain.Speaker, error) {
	return nil, nil
}

func (s *fakeStore) CheckAvailability(_ context.Context, _ string, date domain.SessionDate) (bool, error) {
	s.mu.Lock()
	s.checkCalls++
	gate := s.checkGates[date]
	started := s.checkStarted
	s.mu.Unlock()

	if started != nil {
		started <- date
	}
	// Контекст намеренно игнорируется: ответ должен прийти и после отмены
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.checkErr != nil {
		return false, s.checkErr
	}
	available, known := s.availability[date]
	if !known {
		return true, nil
	}
	return available, nil
}

func (s *fakeStore) CreateAssignment(_ context.Context, id string, date domain.SessionDate, specialty domain.Specialty) (domain.Assignment, error) {
	s.mu.Lock()
	s.createCalls++
	gate := s.commitGate
	start := s.commitStart
	s.mu.Unlock()

	if start != nil {
		start <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createErr != nil {
		return domain.Assignment{}, s.createErr
	}

	a := domain.Assignment{
		ID:          fmt.Sprintf("a-%d", len(s.created)+1),
		SpeakerID:   id,
		SessionDate: date,
		Specialty:   specialty,
	}
	s.created = append(s.created, a)
	s.availability[date] = false
	s.window[date] = false
	return a, nil
}

func (s *fakeStore) GetAvailabilityWindow(context.Context, string, domain.SessionDate, int) (domain.AvailabilityWindow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.windowCalls++
	if s.windowErr != nil {
		return nil, s.windowErr
	}
	out := make(domain.AvailabilityWindow, len(s.window))
	for k, v := range s.window {
		out[k] = v
	}
	return out, nil
}

func (s *fakeStore) ListAssignments(context.Context, string) ([]domain.Assignment, error) {
	return nil, nil
}

func (s *fakeStore) counts() (check, create, window int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkCalls, s.createCalls, s.windowCalls
}

var fixedNow = time.Date(2024, time.March, 10, 10, 0, 0, 0, time.UTC)

func date(day int) domain.SessionDate {
	return domain.NewSessionDate(2024, time.March, day)
}

func newTestCoordinator(store *fakeStore) *Coordinator {
	return NewCoordinator(store, logger.NewNopLogger(), WithClock(func() time.Time { return fixedNow }))
}

func drain(sub *pubsub.Subscription[domain.Notification]) []domain.Notification {
	var got []domain.Notification
	for {
		select {
		case n := <-sub.C():
			got = append(got, n)
		default:
			return got
		}
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestCoordinator_BookingWalkthrough(t *testing.T) {
	store := newFakeStore()
	store.availability[date(11)] = false
	store.availability[date(12)] = true
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}
	if got := c.Snapshot().Phase(); got != domain.PhaseSpeakerSelected {
		t.Fatalf("phase = %s, want speaker_selected", got)
	}
	if len(c.Calendar()) != domain.CalendarDaysAhead {
		t.Fatalf("calendar not built after speaker selection")
	}

	// Прошлая дата: без обращения к хранилищу
	outcome, err := c.SelectDate(ctx, date(9))
	if outcome.Kind != domain.OutcomeRejectedPastDate || !errors.Is(err, domain.ErrPastDate) {
		t.Fatalf("SelectDate(03-09) = %s, %v", outcome.Kind, err)
	}
	if !c.Snapshot().PastDate {
		t.Fatalf("PastDate flag not set")
	}
	if check, _, _ := store.counts(); check != 0 {
		t.Fatalf("store checked %d times for a past date", check)
	}

	outcome, err = c.SelectDate(ctx, date(11))
	if err != nil || outcome.Kind != domain.OutcomeUnavailable {
		t.Fatalf("SelectDate(03-11) = %s, %v", outcome.Kind, err)
	}
	if _, err := c.Commit(ctx); !errors.Is(err, domain.ErrCommitNotPermitted) {
		t.Fatalf("Commit() on unavailable date error = %v", err)
	}
	if _, create, _ := store.counts(); create != 0 {
		t.Fatalf("commit reached the store for an unavailable date")
	}

	outcome, err = c.SelectDate(ctx, date(12))
	if err != nil || outcome.Kind != domain.OutcomeAvailable {
		t.Fatalf("SelectDate(03-12) = %s, %v", outcome.Kind, err)
	}
	if c.Snapshot().Verdict != domain.VerdictAvailable {
		t.Fatalf("verdict = %s", c.Snapshot().Verdict)
	}

	_, _, windowsBefore := store.counts()
	assignment, err := c.Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if assignment.ID == "" || assignment.Specialty != domain.SpecialtyApex || assignment.SessionDate != date(12) {
		t.Fatalf("assignment = %+v", assignment)
	}

	_, create, windowsAfter := store.counts()
	if create != 1 {
		t.Fatalf("create calls = %d, want 1", create)
	}
	if windowsAfter-windowsBefore != 1 {
		t.Fatalf("calendar refreshes after commit = %d, want 1", windowsAfter-windowsBefore)
	}

	state := c.Snapshot()
	if !state.Date.IsZero() || state.Verdict != domain.VerdictUnknown {
		t.Fatalf("state after commit = %+v", state)
	}
	if state.Speaker == nil || state.Speaker.ID != "spk-1" {
		t.Fatalf("speaker dropped after commit")
	}
	if state.LastAssignmentID != assignment.ID {
		t.Fatalf("LastAssignmentID = %q, want %q", state.LastAssignmentID, assignment.ID)
	}

	calendar := c.Calendar()
	if calendar[0].Date != date(11) {
		t.Fatalf("calendar starts at %s, want 2024-03-11", calendar[0].Date)
	}
	if calendar[1].Status != domain.DayStatusBooked {
		t.Fatalf("booked day shows %s", calendar[1].Status)
	}
}

func TestCoordinator_LateVerdictForPreviousDateIsDiscarded(t *testing.T) {
	store := newFakeStore()
	store.availability[date(12)] = true
	store.availability[date(13)] = false
	gate := make(chan struct{})
	store.checkGates[date(12)] = gate
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}

	store.mu.Lock()
	store.checkStarted = make(chan domain.SessionDate, 2)
	started := store.checkStarted
	store.mu.Unlock()

	type result struct {
		outcome domain.Outcome
		err     error
	}
	first := make(chan result, 1)
	go func() {
		o, err := c.SelectDate(ctx, date(12))
		first <- result{o, err}
	}()

	<-started
	if !c.Snapshot().Checking {
		t.Fatalf("Checking not set while check outstanding")
	}

	outcome, err := c.SelectDate(ctx, date(13))
	<-started
	if err != nil || outcome.Kind != domain.OutcomeUnavailable {
		t.Fatalf("SelectDate(03-13) = %s, %v", outcome.Kind, err)
	}

	close(gate)
	late := <-first
	if !errors.Is(late.err, domain.ErrStaleResult) {
		t.Fatalf("late SelectDate error = %v, want ErrStaleResult", late.err)
	}

	state := c.Snapshot()
	if state.Date != date(13) || state.Verdict != domain.VerdictUnavailable {
		t.Fatalf("state = date %s verdict %s, want 2024-03-13 unavailable", state.Date, state.Verdict)
	}
	if state.Checking {
		t.Fatalf("Checking left set")
	}
}

func TestCoordinator_CommitRejectedWhileChecking(t *testing.T) {
	store := newFakeStore()
	gate := make(chan struct{})
	store.checkGates[date(12)] = gate
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}

	store.mu.Lock()
	store.checkStarted = make(chan domain.SessionDate, 1)
	started := store.checkStarted
	store.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.SelectDate(ctx, date(12))
	}()
	<-started

	if _, err := c.Commit(ctx); !errors.Is(err, domain.ErrCommitNotPermitted) {
		t.Fatalf("Commit() during check error = %v", err)
	}

	close(gate)
	<-done

	if _, create, _ := store.counts(); create != 0 {
		t.Fatalf("create calls = %d, want 0", create)
	}
}

func TestCoordinator_SingleCommitInFlight(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}
	if _, err := c.SelectDate(ctx, date(12)); err != nil {
		t.Fatalf("SelectDate() error = %v", err)
	}

	store.mu.Lock()
	store.commitGate = make(chan struct{})
	store.commitStart = make(chan struct{}, 1)
	gate, start := store.commitGate, store.commitStart
	store.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := c.Commit(ctx)
		done <- err
	}()
	<-start

	if !c.Snapshot().Committing {
		t.Fatalf("Committing not set")
	}
	if _, err := c.Commit(ctx); !errors.Is(err, domain.ErrCommitNotPermitted) {
		t.Fatalf("second Commit() error = %v", err)
	}
	if _, err := c.SelectDate(ctx, date(13)); !errors.Is(err, domain.ErrOperationInFlight) {
		t.Fatalf("SelectDate() during commit error = %v", err)
	}

	close(gate)
	if err := <-done; err != nil {
		t.Fatalf("first Commit() error = %v", err)
	}
	if _, create, _ := store.counts(); create != 1 {
		t.Fatalf("create calls = %d, want 1", create)
	}
}

func TestCoordinator_CommitConflictRequiresRevalidation(t *testing.T) {
	store := newFakeStore()
	store.createErr = fmt.Errorf("unique constraint: %w", domain.ErrConflictOnCommit)
	c := newTestCoordinator(store)
	notifications := c.SubscribeNotifications(16)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}
	if _, err := c.SelectDate(ctx, date(12)); err != nil {
		t.Fatalf("SelectDate() error = %v", err)
	}
	drain(notifications)

	_, _, windowsBefore := store.counts()
	if _, err := c.Commit(ctx); !errors.Is(err, domain.ErrConflictOnCommit) {
		t.Fatalf("Commit() error = %v, want ErrConflictOnCommit", err)
	}

	state := c.Snapshot()
	if state.Date != date(12) {
		t.Fatalf("date cleared after failed commit: %s", state.Date)
	}
	if state.Verdict != domain.VerdictUnknown || state.Committing {
		t.Fatalf("state after failed commit = %+v", state)
	}
	if _, _, windowsAfter := store.counts(); windowsAfter != windowsBefore {
		t.Fatalf("calendar refreshed after failed commit")
	}

	got := drain(notifications)
	if len(got) != 1 || got[0].Severity != domain.SeverityError {
		t.Fatalf("notifications = %+v", got)
	}

	// Повтор без новой проверки запрещен
	if _, err := c.Commit(ctx); !errors.Is(err, domain.ErrCommitNotPermitted) {
		t.Fatalf("retry without revalidation error = %v", err)
	}
}

func TestCoordinator_CheckFailure(t *testing.T) {
	store := newFakeStore()
	store.checkErr = errors.New("timeout")
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}

	outcome, err := c.SelectDate(ctx, date(12))
	if outcome.Kind != domain.OutcomeCheckFailed || !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("SelectDate() = %s, %v", outcome.Kind, err)
	}

	state := c.Snapshot()
	if state.Verdict != domain.VerdictUnknown || state.Checking {
		t.Fatalf("state after failed check = %+v", state)
	}
}

func TestCoordinator_SpeakerFetchFailureClearsSelection(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store)
	notifications := c.SubscribeNotifications(4)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}

	err := c.SelectSpeaker(ctx, "missing")
	if !errors.Is(err, domain.ErrSpeakerNotFound) {
		t.Fatalf("SelectSpeaker(missing) error = %v", err)
	}

	if got := c.Snapshot().Phase(); got != domain.PhaseNoSpeaker {
		t.Fatalf("phase = %s, want no_speaker", got)
	}
	if len(c.Calendar()) != 0 {
		t.Fatalf("calendar kept after failed selection")
	}

	got := drain(notifications)
	if len(got) != 1 || got[0].Message != "Failed to load speaker details" {
		t.Fatalf("notifications = %+v", got)
	}

	store.mu.Lock()
	store.speakerErr = errors.New("connection reset")
	store.mu.Unlock()
	if err := c.SelectSpeaker(ctx, "spk-1"); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("SelectSpeaker() with store down error = %v", err)
	}
}

func TestCoordinator_CalendarFailureClearsProjection(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}
	if len(c.Calendar()) != domain.CalendarDaysAhead {
		t.Fatalf("calendar not built")
	}

	store.mu.Lock()
	store.windowErr = errors.New("store down")
	store.mu.Unlock()

	projection, err := c.RefreshCalendar(ctx)
	if !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("RefreshCalendar() error = %v", err)
	}
	if len(projection) != 0 || len(c.Calendar()) != 0 {
		t.Fatalf("stale calendar kept after failure")
	}
	if c.Snapshot().CalendarLoading {
		t.Fatalf("CalendarLoading left set")
	}
}

func TestCoordinator_SpeakerChangeResetsDateAndVerdict(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}
	if _, err := c.SelectDate(ctx, date(12)); err != nil {
		t.Fatalf("SelectDate() error = %v", err)
	}

	if err := c.SelectSpeaker(ctx, "spk-2"); err != nil {
		t.Fatalf("SelectSpeaker(spk-2) error = %v", err)
	}

	state := c.Snapshot()
	if state.Speaker.ID != "spk-2" || !state.Date.IsZero() || state.Verdict != domain.VerdictUnknown {
		t.Fatalf("state after speaker change = %+v", state)
	}
	if _, err := c.Commit(ctx); !errors.Is(err, domain.ErrCommitNotPermitted) {
		t.Fatalf("Commit() after speaker change error = %v", err)
	}
}

func TestCoordinator_InvalidInput(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store)
	ctx := context.Background()

	if err := c.SelectSpeaker(ctx, ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("SelectSpeaker(\"\") error = %v", err)
	}

	outcome, err := c.SelectDate(ctx, date(12))
	if outcome.Kind != domain.OutcomeInvalidInput || !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("SelectDate() without speaker = %s, %v", outcome.Kind, err)
	}

	if err := c.SelectSpeaker(ctx, "spk-1"); err != nil {
		t.Fatalf("SelectSpeaker() error = %v", err)
	}
	if _, err := c.SelectDate(ctx, domain.SessionDate{}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("SelectDate(zero) error = %v", err)
	}
	if check, _, _ := store.counts(); check != 0 {
		t.Fatalf("store checked %d times for invalid input", check)
	}
}

func TestCoordinator_RunFollowsSelectionChannel(t *testing.T) {
	store := newFakeStore()
	c := newTestCoordinator(store)
	selections := pubsub.NewTopic[domain.SpeakerSelection]()
	snapshots := c.SubscribeSnapshots(64)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- c.Run(ctx, selections, 4)
	}()

	waitFor(t, func() bool { return selections.Subscribers() == 1 })

	selections.Publish(domain.SpeakerSelection{SpeakerID: "spk-2", SpeakerName: "Rear Admiral Hopper"})

	waitFor(t, func() bool {
		s := c.Snapshot()
		return s.Speaker != nil && s.Speaker.ID == "spk-2" && len(c.Calendar()) == domain.CalendarDaysAhead
	})
	if got := c.Snapshot().SpeakerName; got != "Rear Admiral Hopper" {
		t.Fatalf("SpeakerName = %q", got)
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v", err)
	}
	if selections.Subscribers() != 0 {
		t.Fatalf("Run() left subscription behind")
	}

	sawSpeaker := false
	for len(snapshots.C()) > 0 {
		s := <-snapshots.C()
		if s.Speaker != nil && s.Speaker.ID == "spk-2" {
			sawSpeaker = true
		}
	}
	if !sawSpeaker {
		t.Fatalf("observers never saw the selected speaker")
	}
}
