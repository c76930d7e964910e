package membership

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/tobiloba/ajopool/internal/group"
)

type fakeStore struct {
	mu        sync.Mutex
	members   map[int64]*Membership // keyed by user ID, single group
	positions map[int]int64
	insertErr error
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		members:   make(map[int64]*Membership),
		positions: make(map[int]int64),
	}
}

func (s *fakeStore) Insert(_ context.Context, m *Membership) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return nil, s.insertErr
	}
	if _, ok := s.members[m.UserID]; ok {
		return nil, ErrAlreadyMember
	}
	if _, ok := s.positions[m.Position]; ok {
		return nil, ErrPositionTaken
	}
	s.nextID++
	stored := *m
	stored.ID = s.nextID
	stored.Status = StatusActive
	s.members[m.UserID] = &stored
	s.positions[m.Position] = m.UserID
	cp := stored
	return &cp, nil
}

func (s *fakeStore) Get(_ context.Context, _ int64, userID int64) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *fakeStore) GetByPosition(_ context.Context, _ int64, position int) (*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	userID, ok := s.positions[position]
	if !ok {
		return nil, nil
	}
	cp := *s.members[userID]
	return &cp, nil
}

func (s *fakeStore) ListActive(_ context.Context, _ int64) ([]*Membership, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Membership
	for _, m := range s.members {
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeStore) CountActive(_ context.Context, _ int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.members), nil
}

func (s *fakeStore) MarkDepositPaid(_ context.Context, _ int64, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.members[userID]
	if !ok {
		return ErrMemberNotFound
	}
	m.HasPaidDeposit = true
	return nil
}

type fakeGroups struct {
	g *group.Group
}

func (f *fakeGroups) GetByID(_ context.Context, id int64) (*group.Group, error) {
	if f.g == nil || f.g.ID != id {
		return nil, nil
	}
	cp := *f.g
	return &cp, nil
}

type fakeSeeder struct {
	mu     sync.Mutex
	seeded []int64
}

func (f *fakeSeeder) EnsurePending(_ context.Context, _ int64, userID int64, _ int, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seeded = append(f.seeded, userID)
	return nil
}

func testGroup() *group.Group {
	return &group.Group{
		ID:                 1,
		CreatorID:          10,
		ContributionAmount: 500_00,
		DepositAmount:      500_00,
		TotalSlots:         3,
		CurrentCycle:       1,
		Status:             group.StatusForming,
	}
}

func TestAddCreatesMembershipAndSeedsContribution(t *testing.T) {
	store := newFakeStore()
	seeder := &fakeSeeder{}
	svc := NewService(store, &fakeGroups{g: testGroup()}, seeder)

	m, created, err := svc.Add(context.Background(), 1, 20, 2, false)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if !created || m.Position != 2 || m.Status != StatusActive {
		t.Fatalf("Add() = %+v, created=%v", m, created)
	}
	if len(seeder.seeded) != 1 || seeder.seeded[0] != 20 {
		t.Fatalf("seeded contributions = %v, want [20]", seeder.seeded)
	}
}

func TestAddIsIdempotent(t *testing.T) {
	store := newFakeStore()
	seeder := &fakeSeeder{}
	svc := NewService(store, &fakeGroups{g: testGroup()}, seeder)

	first, created, _ := svc.Add(context.Background(), 1, 20, 2, false)
	if !created {
		t.Fatal("first Add() reported created=false")
	}

	second, created, err := svc.Add(context.Background(), 1, 20, 2, false)
	if err != nil {
		t.Fatalf("replay Add() error = %v", err)
	}
	if created {
		t.Fatal("replay Add() reported created=true")
	}
	if second.ID != first.ID || second.Position != first.Position {
		t.Fatalf("replay returned %+v, want the original %+v", second, first)
	}
	if len(seeder.seeded) != 1 {
		t.Fatalf("seeded contributions = %v, want a single seed", seeder.seeded)
	}
}

func TestAddRejectsFullGroup(t *testing.T) {
	g := testGroup()
	store := newFakeStore()
	svc := NewService(store, &fakeGroups{g: g}, &fakeSeeder{})

	for i := 0; i < g.TotalSlots; i++ {
		if _, _, err := svc.Add(context.Background(), 1, int64(20+i), i+1, false); err != nil {
			t.Fatalf("Add(member %d) error = %v", i, err)
		}
	}

	if _, _, err := svc.Add(context.Background(), 1, 99, 1, false); !errors.Is(err, ErrGroupFull) {
		t.Fatalf("Add() into full group error = %v, want ErrGroupFull", err)
	}
}

func TestAddConvergesAfterLostInsertRace(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeGroups{g: testGroup()}, &fakeSeeder{})

	// Simulate losing the insert race: the row appears between the Get and
	// the Insert.
	winner := &Membership{ID: 7, GroupID: 1, UserID: 20, Position: 2, Status: StatusActive}
	store.insertErr = ErrAlreadyMember
	store.members[20] = winner

	m, created, err := svc.Add(context.Background(), 1, 20, 3, false)
	if err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	if created || m.ID != winner.ID || m.Position != winner.Position {
		t.Fatalf("Add() = %+v created=%v, want the winner's row", m, created)
	}
}

func TestAddUnknownGroup(t *testing.T) {
	svc := NewService(newFakeStore(), &fakeGroups{}, &fakeSeeder{})

	if _, _, err := svc.Add(context.Background(), 5, 20, 1, false); !errors.Is(err, ErrGroupNotFound) {
		t.Fatalf("Add() error = %v, want ErrGroupNotFound", err)
	}
}

func TestMarkDepositPaid(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeGroups{g: testGroup()}, &fakeSeeder{})

	svc.Add(context.Background(), 1, 20, 1, false)

	if err := svc.MarkDepositPaid(context.Background(), 1, 20); err != nil {
		t.Fatalf("MarkDepositPaid() error = %v", err)
	}
	m, _ := svc.Get(context.Background(), 1, 20)
	if !m.HasPaidDeposit {
		t.Fatal("deposit not flagged paid")
	}

	// Replay is harmless.
	if err := svc.MarkDepositPaid(context.Background(), 1, 20); err != nil {
		t.Fatalf("replay MarkDepositPaid() error = %v", err)
	}

	if err := svc.MarkDepositPaid(context.Background(), 1, 99); !errors.Is(err, ErrMemberNotFound) {
		t.Fatalf("MarkDepositPaid() for outsider error = %v, want ErrMemberNotFound", err)
	}
}

func TestListGroupMembersView(t *testing.T) {
	store := newFakeStore()
	svc := NewService(store, &fakeGroups{g: testGroup()}, &fakeSeeder{})

	svc.Add(context.Background(), 1, 10, 1, true)
	svc.MarkDepositPaid(context.Background(), 1, 10)

	views, err := svc.ListGroupMembers(context.Background(), 1)
	if err != nil {
		t.Fatalf("ListGroupMembers() error = %v", err)
	}
	if len(views) != 1 {
		t.Fatalf("views = %d, want 1", len(views))
	}
	v := views[0]
	if v.UserID != 10 || !v.IsCreator || !v.HasPaidDeposit || v.Position != 1 {
		t.Fatalf("view = %+v", v)
	}
}
