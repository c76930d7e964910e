package joinrequest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tobiloba/ajopool/internal/group"
	"github.com/tobiloba/ajopool/internal/membership"
	"github.com/tobiloba/ajopool/internal/slot"
)

// --- fakes ---

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[int64]*JoinRequest
	nextID   int64
}

func newFakeRequestStore() *fakeRequestStore {
	return &fakeRequestStore{requests: make(map[int64]*JoinRequest)}
}

func (s *fakeRequestStore) Create(_ context.Context, jr *JoinRequest) (*JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.requests {
		if existing.GroupID == jr.GroupID && existing.UserID == jr.UserID &&
			(existing.Status == StatusPending || existing.Status == StatusApproved) {
			return nil, ErrOpenRequestExists
		}
	}
	s.nextID++
	stored := *jr
	stored.ID = s.nextID
	stored.Status = StatusPending
	s.requests[stored.ID] = &stored
	cp := stored
	return &cp, nil
}

func (s *fakeRequestStore) GetByID(_ context.Context, id int64) (*JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jr, ok := s.requests[id]
	if !ok {
		return nil, nil
	}
	cp := *jr
	return &cp, nil
}

func (s *fakeRequestStore) GetApproved(_ context.Context, groupID, userID int64) (*JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, jr := range s.requests {
		if jr.GroupID == groupID && jr.UserID == userID && jr.Status == StatusApproved {
			cp := *jr
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeRequestStore) ListByGroup(_ context.Context, groupID int64) ([]*JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*JoinRequest
	for _, jr := range s.requests {
		if jr.GroupID == groupID {
			cp := *jr
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeRequestStore) UpdateStatus(_ context.Context, id int64, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	jr, ok := s.requests[id]
	if !ok || jr.Status != from {
		return false, nil
	}
	jr.Status = to
	return true, nil
}

func (s *fakeRequestStore) ListExpiredOpen(_ context.Context, now time.Time) ([]*JoinRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*JoinRequest
	for _, jr := range s.requests {
		if (jr.Status == StatusPending || jr.Status == StatusApproved) && jr.ExpiresAt.Before(now) {
			cp := *jr
			out = append(out, &cp)
		}
	}
	return out, nil
}

type fakeGroups struct {
	groups map[int64]*group.Group
}

func (f *fakeGroups) GetByID(_ context.Context, id int64) (*group.Group, error) {
	g, ok := f.groups[id]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

type fakeMembers struct {
	members map[int64]*membership.Membership // keyed by user ID, single group
}

func (f *fakeMembers) Get(_ context.Context, _ int64, userID int64) (*membership.Membership, error) {
	m, ok := f.members[userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *fakeMembers) CountActive(context.Context, int64) (int, error) {
	return len(f.members), nil
}

type fakeLedger struct {
	mu    sync.Mutex
	slots map[int]*slot.Slot
}

func newFakeLedger(groupID int64, total int) *fakeLedger {
	l := &fakeLedger{slots: make(map[int]*slot.Slot)}
	for i := 1; i <= total; i++ {
		l.slots[i] = &slot.Slot{GroupID: groupID, Number: i, Status: slot.StatusAvailable}
	}
	return l
}

func (l *fakeLedger) Initialize(context.Context, int64, int) error { return nil }

func (l *fakeLedger) Get(_ context.Context, _ int64, number int) (*slot.Slot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[number]
	if !ok {
		return nil, slot.ErrSlotNotFound
	}
	cp := *s
	return &cp, nil
}

func (l *fakeLedger) List(context.Context, int64) ([]*slot.Slot, error) { return nil, nil }

func (l *fakeLedger) Reserve(_ context.Context, _ int64, number int, userID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[number]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if s.Status != slot.StatusAvailable {
		return slot.ErrSlotUnavailable
	}
	s.Status = slot.StatusReserved
	s.ReservedBy = &userID
	return nil
}

func (l *fakeLedger) Release(_ context.Context, _ int64, number int, holderID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[number]
	if !ok {
		return slot.ErrSlotNotFound
	}
	if s.Status == slot.StatusReserved && s.ReservedBy != nil && *s.ReservedBy == holderID {
		s.Status = slot.StatusAvailable
		s.ReservedBy = nil
	}
	return nil
}

func (l *fakeLedger) Assign(context.Context, int64, int, int64) error { return nil }

func (l *fakeLedger) NextAvailable(context.Context, int64) (int, error) {
	return 0, slot.ErrNoSlotsAvailable
}

type recordingNotifier struct {
	mu       sync.Mutex
	received []int64
	decided  []bool
}

func (n *recordingNotifier) JoinRequestReceived(_ context.Context, creatorID, _, _ int64) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.received = append(n.received, creatorID)
}

func (n *recordingNotifier) JoinRequestDecided(_ context.Context, _, _ int64, approved bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.decided = append(n.decided, approved)
}

// --- harness ---

type serviceEnv struct {
	store    *fakeRequestStore
	groups   *fakeGroups
	members  *fakeMembers
	slots    *fakeLedger
	notifier *recordingNotifier
	service  *Service
}

func newServiceEnv(g *group.Group) *serviceEnv {
	env := &serviceEnv{
		store:    newFakeRequestStore(),
		groups:   &fakeGroups{groups: map[int64]*group.Group{g.ID: g}},
		members:  &fakeMembers{members: make(map[int64]*membership.Membership)},
		slots:    newFakeLedger(g.ID, g.TotalSlots),
		notifier: &recordingNotifier{},
	}
	env.service = NewService(env.store, env.groups, env.members, env.slots, env.notifier, 48*time.Hour)
	return env
}

func formingGroup() *group.Group {
	return &group.Group{
		ID:                 1,
		CreatorID:          10,
		ContributionAmount: 500_00,
		DepositAmount:      500_00,
		TotalSlots:         4,
		CurrentCycle:       1,
		Status:             group.StatusForming,
	}
}

// --- tests ---

func TestRequestReservesPreferredSlot(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	preferred := 3
	jr, err := env.service.Request(context.Background(), g.ID, 20, &preferred)
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if jr.Status != StatusPending || jr.PreferredSlot == nil || *jr.PreferredSlot != 3 {
		t.Fatalf("request = %+v, want pending with slot 3", jr)
	}
	if jr.ExpiresAt.Before(time.Now().Add(47 * time.Hour)) {
		t.Fatalf("expires_at = %v, want roughly 48h out", jr.ExpiresAt)
	}

	s, _ := env.slots.Get(context.Background(), g.ID, 3)
	if s.Status != slot.StatusReserved || *s.ReservedBy != 20 {
		t.Fatalf("slot 3 = %+v, want reserved by 20", s)
	}
	if len(env.notifier.received) != 1 || env.notifier.received[0] != g.CreatorID {
		t.Fatalf("creator notifications = %v", env.notifier.received)
	}
}

func TestRequestSlotContention(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	preferred := 2
	if _, err := env.service.Request(context.Background(), g.ID, 20, &preferred); err != nil {
		t.Fatalf("first Request() error = %v", err)
	}

	// Second applicant wants the same slot and loses on the ledger row.
	if _, err := env.service.Request(context.Background(), g.ID, 21, &preferred); !errors.Is(err, slot.ErrSlotUnavailable) {
		t.Fatalf("second Request() error = %v, want ErrSlotUnavailable", err)
	}

	// The loser can retry with a free slot.
	other := 3
	if _, err := env.service.Request(context.Background(), g.ID, 21, &other); err != nil {
		t.Fatalf("retry Request() error = %v", err)
	}
}

func TestRequestDuplicateReleasesReservation(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	first := 2
	if _, err := env.service.Request(context.Background(), g.ID, 20, &first); err != nil {
		t.Fatalf("Request() error = %v", err)
	}

	second := 3
	if _, err := env.service.Request(context.Background(), g.ID, 20, &second); !errors.Is(err, ErrOpenRequestExists) {
		t.Fatalf("duplicate Request() error = %v, want ErrOpenRequestExists", err)
	}

	// The duplicate's reservation must not leak.
	s, _ := env.slots.Get(context.Background(), g.ID, 3)
	if s.Status != slot.StatusAvailable {
		t.Fatalf("slot 3 = %+v, want released back to available", s)
	}
}

func TestRequestValidation(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(*group.Group, *serviceEnv)
		userID  int64
		wantErr error
	}{
		{
			name:    "creator cannot file a join request",
			setup:   func(*group.Group, *serviceEnv) {},
			userID:  10,
			wantErr: ErrCreatorJoin,
		},
		{
			name: "group must be forming",
			setup: func(g *group.Group, env *serviceEnv) {
				env.groups.groups[g.ID].Status = group.StatusActive
			},
			userID:  20,
			wantErr: ErrGroupNotForming,
		},
		{
			name: "existing member rejected",
			setup: func(g *group.Group, env *serviceEnv) {
				env.members.members[20] = &membership.Membership{UserID: 20, Status: membership.StatusActive}
			},
			userID:  20,
			wantErr: ErrAlreadyMember,
		},
		{
			name: "full group rejected",
			setup: func(g *group.Group, env *serviceEnv) {
				for i := int64(0); i < int64(g.TotalSlots); i++ {
					env.members.members[100+i] = &membership.Membership{UserID: 100 + i, Status: membership.StatusActive}
				}
			},
			userID:  20,
			wantErr: ErrGroupFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := formingGroup()
			env := newServiceEnv(g)
			tt.setup(g, env)

			if _, err := env.service.Request(context.Background(), g.ID, tt.userID, nil); !errors.Is(err, tt.wantErr) {
				t.Fatalf("Request() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestApproveCreatorOnly(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	jr, _ := env.service.Request(context.Background(), g.ID, 20, nil)

	if _, err := env.service.Approve(context.Background(), jr.ID, 99); !errors.Is(err, ErrNotGroupCreator) {
		t.Fatalf("Approve() by non-creator error = %v, want ErrNotGroupCreator", err)
	}

	approved, err := env.service.Approve(context.Background(), jr.ID, g.CreatorID)
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if approved.Status != StatusApproved {
		t.Fatalf("status = %q, want approved", approved.Status)
	}
	if len(env.notifier.decided) != 1 || !env.notifier.decided[0] {
		t.Fatalf("decision notifications = %v, want one approval", env.notifier.decided)
	}
}

func TestApproveAlreadyDecided(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	jr, _ := env.service.Request(context.Background(), g.ID, 20, nil)
	env.service.Approve(context.Background(), jr.ID, g.CreatorID)

	if _, err := env.service.Approve(context.Background(), jr.ID, g.CreatorID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("second Approve() error = %v, want ErrNotPending", err)
	}
	if _, err := env.service.Reject(context.Background(), jr.ID, g.CreatorID); !errors.Is(err, ErrNotPending) {
		t.Fatalf("Reject() after approval error = %v, want ErrNotPending", err)
	}
}

func TestRejectReleasesSlot(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	preferred := 2
	jr, _ := env.service.Request(context.Background(), g.ID, 20, &preferred)

	rejected, err := env.service.Reject(context.Background(), jr.ID, g.CreatorID)
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != StatusRejected {
		t.Fatalf("status = %q, want rejected", rejected.Status)
	}

	s, _ := env.slots.Get(context.Background(), g.ID, 2)
	if s.Status != slot.StatusAvailable {
		t.Fatalf("slot 2 = %+v, want available after rejection", s)
	}
}

func TestMarkCompletedRetiresApprovedRequest(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	jr, _ := env.service.Request(context.Background(), g.ID, 20, nil)
	env.service.Approve(context.Background(), jr.ID, g.CreatorID)

	if err := env.service.MarkCompleted(context.Background(), jr.ID); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}

	if approved, _ := env.service.GetApproved(context.Background(), g.ID, 20); approved != nil {
		t.Fatalf("GetApproved() = %+v after completion, want nil", approved)
	}

	// Replay: the request already left approved, still no error.
	if err := env.service.MarkCompleted(context.Background(), jr.ID); err != nil {
		t.Fatalf("replay MarkCompleted() error = %v", err)
	}
}

func TestExpireStaleReleasesReservations(t *testing.T) {
	g := formingGroup()
	env := newServiceEnv(g)

	preferred := 2
	jr, _ := env.service.Request(context.Background(), g.ID, 20, &preferred)
	env.service.Approve(context.Background(), jr.ID, g.CreatorID)

	fresh, _ := env.service.Request(context.Background(), g.ID, 21, nil)

	// Push the first request past its deadline.
	env.store.mu.Lock()
	env.store.requests[jr.ID].ExpiresAt = time.Now().Add(-time.Hour)
	env.store.mu.Unlock()

	expired, err := env.service.ExpireStale(context.Background())
	if err != nil {
		t.Fatalf("ExpireStale() error = %v", err)
	}
	if expired != 1 {
		t.Fatalf("expired = %d, want 1", expired)
	}

	got, _ := env.store.GetByID(context.Background(), jr.ID)
	if got.Status != StatusExpired {
		t.Fatalf("stale request status = %q, want expired", got.Status)
	}

	s, _ := env.slots.Get(context.Background(), g.ID, 2)
	if s.Status != slot.StatusAvailable {
		t.Fatalf("slot 2 = %+v, want released by expiry", s)
	}

	untouched, _ := env.store.GetByID(context.Background(), fresh.ID)
	if untouched.Status != StatusPending {
		t.Fatalf("fresh request status = %q, want still pending", untouched.Status)
	}
}
