package handlers

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jason-s-yu/screenbreakers/internal/database"
	"github.com/jason-s-yu/screenbreakers/internal/models"
)

// memStore is an in-memory Store with the same error contract as
// database.Store.
type memStore struct {
	mu     sync.Mutex
	users  map[uuid.UUID]*models.User
	order  []uuid.UUID
	boards map[string]models.Leaderboard
	usage  map[uuid.UUID]map[int]int
	nextID int
}

func newMemStore() *memStore {
	return &memStore{
		users:  map[uuid.UUID]*models.User{},
		boards: map[string]models.Leaderboard{},
		usage:  map[uuid.UUID]map[int]int{},
	}
}

func (m *memStore) EnsureUser(_ context.Context, id uuid.UUID, name string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return *u, nil
	}
	if name == "" {
		name = models.DefaultPlayerName
	}
	u := &models.User{ID: id, Name: name}
	m.users[id] = u
	m.order = append(m.order, id)
	return *u, nil
}

func (m *memStore) UpsertUser(_ context.Context, id uuid.UUID, name string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		u = &models.User{ID: id}
		m.users[id] = u
		m.order = append(m.order, id)
	}
	u.Name = name
	return *u, nil
}

func (m *memStore) UserLeaderboard(_ context.Context, userID uuid.UUID) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return "", database.ErrUserNotFound
	}
	if u.CurrentLeaderboardID == nil {
		return "", nil
	}
	return *u.CurrentLeaderboardID, nil
}

func (m *memStore) CreateLeaderboard(_ context.Context, userID uuid.UUID, name string) (models.Leaderboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return models.Leaderboard{}, database.ErrUserNotFound
	}
	if name == "" {
		name = models.DefaultLeaderboardName
	}
	m.nextID++
	lb := models.Leaderboard{ID: fmt.Sprintf("LB%05d", m.nextID), Name: name}
	m.boards[lb.ID] = lb
	id := lb.ID
	u.CurrentLeaderboardID = &id
	return lb, nil
}

func (m *memStore) JoinLeaderboard(_ context.Context, userID uuid.UUID, leaderboardID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return database.ErrUserNotFound
	}
	if _, ok := m.boards[leaderboardID]; !ok {
		return database.ErrNotFound
	}
	id := leaderboardID
	u.CurrentLeaderboardID = &id
	return nil
}

func (m *memStore) RenameLeaderboard(_ context.Context, leaderboardID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lb, ok := m.boards[leaderboardID]
	if !ok {
		return database.ErrNotFound
	}
	lb.Name = name
	m.boards[leaderboardID] = lb
	return nil
}

func (m *memStore) UpdateDailyUsage(_ context.Context, userID uuid.UUID, day, minutes int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return database.ErrUserNotFound
	}
	if m.usage[userID] == nil {
		m.usage[userID] = map[int]int{}
	}
	m.usage[userID][day] = minutes
	return nil
}

func (m *memStore) GetLeaderboardData(_ context.Context, leaderboardID string, day int) ([]models.Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	lb, ok := m.boards[leaderboardID]
	if !ok {
		return nil, database.ErrNotFound
	}
	var out []models.Member
	for _, id := range m.order {
		u := m.users[id]
		if u.CurrentLeaderboardID == nil || *u.CurrentLeaderboardID != leaderboardID {
			continue
		}
		out = append(out, models.Member{
			UserID:          u.ID,
			UserName:        u.Name,
			TodayMinutes:    m.usage[u.ID][day],
			LeaderboardName: lb.Name,
		})
	}
	return out, nil
}

func (m *memStore) LeaderboardExists(_ context.Context, leaderboardID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.boards[leaderboardID]
	return ok, nil
}

// memNotifier fans changes out to in-process subscribers.
type memNotifier struct {
	mu   sync.Mutex
	subs map[string]map[chan models.RosterChange]struct{}
}

func newMemNotifier() *memNotifier {
	return &memNotifier{subs: map[string]map[chan models.RosterChange]struct{}{}}
}

func (n *memNotifier) Publish(_ context.Context, change models.RosterChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	for ch := range n.subs[change.LeaderboardID] {
		select {
		case ch <- change:
		default:
		}
	}
	return nil
}

func (n *memNotifier) Subscribe(ctx context.Context, leaderboardID string) (<-chan models.RosterChange, error) {
	ch := make(chan models.RosterChange, 16)
	n.mu.Lock()
	if n.subs[leaderboardID] == nil {
		n.subs[leaderboardID] = map[chan models.RosterChange]struct{}{}
	}
	n.subs[leaderboardID][ch] = struct{}{}
	n.mu.Unlock()

	go func() {
		<-ctx.Done()
		n.mu.Lock()
		delete(n.subs[leaderboardID], ch)
		n.mu.Unlock()
		close(ch)
	}()
	return ch, nil
}

func (n *memNotifier) subscribers(leaderboardID string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs[leaderboardID])
}
