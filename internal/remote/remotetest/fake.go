// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jason-s-yu/screenbreakers/internal/models"
	"github.com/jason-s-yu/screenbreakers/internal/remote"
)

// Op names a remote operation for error injection and call counting.
type Op string

const (
	OpCreateOrUpdateUser    Op = "create_or_update_user"
	OpCreateLeaderboard     Op = "create_leaderboard"
	OpJoinLeaderboard       Op = "join_leaderboard"
	OpUpdateDailyUsage      Op = "update_daily_usage"
	OpGetLeaderboardData    Op = "get_leaderboard_data"
	OpUpdateLeaderboardName Op = "update_leaderboard_name"
)

// Call records one invocation.
type Call struct {
	Op            Op
	UserID        uuid.UUID
	LeaderboardID string
	Name          string
	Day           int
	Minutes       int
}

type fakeUser struct {
	name        string
	leaderboard string
	minutes     int
}

// Fake is a goroutine-safe in-memory leaderboard store. The "session" is the
// last user passed to CreateOrUpdateUser, mirroring a signed-in client.
type Fake struct {
	mu sync.Mutex

	session      uuid.UUID
	users        map[uuid.UUID]*fakeUser
	order        []uuid.UUID
	leaderboards map[string]string
	nextID       int

	calls  []Call
	errs   map[Op]error
	hooks  map[Op]func(ctx context.Context)
	NextID func() string
}

// New returns an empty Fake. Leaderboard ids are L1, L2, ... unless NextID is set.
func New() *Fake {
	return &Fake{
		users:        make(map[uuid.UUID]*fakeUser),
		leaderboards: make(map[string]string),
		errs:         make(map[Op]error),
		hooks:        make(map[Op]func(ctx context.Context)),
	}
}

// SetError makes every subsequent op fail with err. A nil err clears it.
func (f *Fake) SetError(op Op, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

// SetHook runs fn at the start of every op, outside the fake's lock. Tests use
// it to hold a call in flight.
func (f *Fake) SetHook(op Op, fn func(ctx context.Context)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if fn == nil {
		delete(f.hooks, op)
		return
	}
	f.hooks[op] = fn
}

// AddLeaderboard creates a leaderboard directly in the store.
func (f *Fake) AddLeaderboard(id, name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaderboards[id] = name
}

// DeleteLeaderboard removes a leaderboard; members keep a dangling reference
// the way a deleted row would leave them.
func (f *Fake) DeleteLeaderboard(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.leaderboards, id)
}

// AddMember places a user on a leaderboard with the given minutes.
func (f *Fake) AddMember(leaderboardID string, userID uuid.UUID, name string, minutes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.userLocked(userID)
	u.name = name
	u.leaderboard = leaderboardID
	u.minutes = minutes
}

// Calls returns a copy of every recorded call.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsTo returns the recorded calls of one op.
func (f *Fake) CallsTo(op Op) []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Call
	for _, c := range f.calls {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Minutes reports the stored usage of a user.
func (f *Fake) Minutes(userID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.users[userID]; ok {
		return u.minutes
	}
	return 0
}

// LeaderboardName reports the stored name of a leaderboard.
func (f *Fake) LeaderboardName(id string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.leaderboards[id]
	return name, ok
}

func (f *Fake) CreateOrUpdateUser(ctx context.Context, userID uuid.UUID, name string) (uuid.UUID, error) {
	if err := f.enter(ctx, Call{Op: OpCreateOrUpdateUser, UserID: userID, Name: name}); err != nil {
		return uuid.Nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.userLocked(userID).name = name
	f.session = userID
	return userID, nil
}

func (f *Fake) CreateLeaderboard(ctx context.Context, name string) (string, error) {
	if err := f.enter(ctx, Call{Op: OpCreateLeaderboard, Name: name}); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == uuid.Nil {
		return "", remote.ErrUnauthenticated
	}
	var id string
	if f.NextID != nil {
		id = f.NextID()
	} else {
		f.nextID++
		id = fmt.Sprintf("L%d", f.nextID)
	}
	f.leaderboards[id] = name
	f.users[f.session].leaderboard = id
	return id, nil
}

func (f *Fake) JoinLeaderboard(ctx context.Context, leaderboardID string) error {
	if err := f.enter(ctx, Call{Op: OpJoinLeaderboard, LeaderboardID: leaderboardID}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == uuid.Nil {
		return remote.ErrUnauthenticated
	}
	if _, ok := f.leaderboards[leaderboardID]; !ok {
		return fmt.Errorf("join %s: %w", leaderboardID, remote.ErrNotFound)
	}
	f.users[f.session].leaderboard = leaderboardID
	return nil
}

func (f *Fake) UpdateDailyUsage(ctx context.Context, userID uuid.UUID, day, minutes int) error {
	if err := f.enter(ctx, Call{Op: OpUpdateDailyUsage, UserID: userID, Day: day, Minutes: minutes}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[userID]; !ok {
		return remote.ErrUnauthenticated
	}
	f.users[userID].minutes = minutes
	return nil
}

func (f *Fake) GetLeaderboardData(ctx context.Context, leaderboardID string) ([]models.Member, error) {
	if err := f.enter(ctx, Call{Op: OpGetLeaderboardData, LeaderboardID: leaderboardID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	name, ok := f.leaderboards[leaderboardID]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", leaderboardID, remote.ErrNotFound)
	}
	var members []models.Member
	for _, id := range f.order {
		u := f.users[id]
		if u.leaderboard != leaderboardID {
			continue
		}
		members = append(members, models.Member{
			UserID:          id,
			UserName:        u.name,
			TodayMinutes:    u.minutes,
			LeaderboardName: name,
		})
	}
	return members, nil
}

func (f *Fake) UpdateLeaderboardName(ctx context.Context, leaderboardID, name string) error {
	if err := f.enter(ctx, Call{Op: OpUpdateLeaderboardName, LeaderboardID: leaderboardID, Name: name}); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.leaderboards[leaderboardID]; !ok {
		return fmt.Errorf("rename %s: %w", leaderboardID, remote.ErrNotFound)
	}
	f.leaderboards[leaderboardID] = name
	return nil
}

// enter records the call, runs the hook and returns any injected error.
func (f *Fake) enter(ctx context.Context, c Call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	hook := f.hooks[c.Op]
	err := f.errs[c.Op]
	f.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", c.Op, err)
	}
	return ctx.Err()
}

func (f *Fake) userLocked(id uuid.UUID) *fakeUser {
	u, ok := f.users[id]
	if !ok {
		u = &fakeUser{}
		f.users[id] = u
		f.order = append(f.order, id)
	}
	return u
}

var _ remote.Client = (*Fake)(nil)
