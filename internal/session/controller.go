// Package session drives the leaderboard sync core from app-level events:
// start, authorization, share, join, usage changes and name edits.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/actor"
	"github.com/jason-s-yu/screenbreakers/internal/identity"
	"github.com/jason-s-yu/screenbreakers/internal/leaderboard"
	"github.com/jason-s-yu/screenbreakers/internal/models"
	"github.com/jason-s-yu/screenbreakers/internal/remote"
	"github.com/jason-s-yu/screenbreakers/internal/usage"
)

// ErrJoinPending is returned by Join before Authorized: the id is held and
// replayed once authorization completes.
var ErrJoinPending = errors.New("join held until authorized")

// Options configures a Controller. Client and Identity are required.
type Options struct {
	Client   remote.Client
	Identity *identity.Store
	// Watcher, when set, is used to refetch whenever the roster changes.
	Watcher remote.RosterWatcher

	Clock         quartz.Clock
	DebounceDelay time.Duration
	LinkScheme    string

	// OnEvent is called on the controller's goroutine and must not call back
	// into blocking Controller methods.
	OnEvent func(Event)
	Logger  logrus.FieldLogger
}

// Controller is the session state machine. Its exported methods are safe for
// concurrent use; state lives on a private actor.
type Controller struct {
	actor   *actor.Actor
	rec     *leaderboard.Reconciler
	deb     *usage.Debouncer
	ids     *identity.Store
	client  remote.Client
	watcher remote.RosterWatcher
	clock   quartz.Clock
	scheme  string
	onEvent func(Event)
	logger  logrus.FieldLogger

	ctx    context.Context
	cancel context.CancelFunc
	bgMu   sync.Mutex
	bg     sync.WaitGroup
	closed bool

	// actor-owned
	started     bool
	authorized  bool
	registered  bool
	loading     int
	pendingJoin string
	watching    string
	stopWatch   context.CancelFunc
	// creating is closed when the in-flight Share create finishes
	creating chan struct{}
}

// New builds a Controller. Nothing happens until Start.
func New(ctx context.Context, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.LinkScheme == "" {
		opts.LinkScheme = leaderboard.DefaultScheme
	}
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &Controller{
		actor:   actor.New(ctx),
		ids:     opts.Identity,
		client:  opts.Client,
		watcher: opts.Watcher,
		clock:   opts.Clock,
		scheme:  opts.LinkScheme,
		onEvent: opts.OnEvent,
		logger:  opts.Logger.WithField("component", "session"),
		ctx:     ctx,
		cancel:  cancel,
	}
	c.rec = leaderboard.New(c.actor, opts.Client, opts.Identity, opts.Logger)
	c.deb = usage.NewDebouncer(usage.DebouncerOptions{
		Clock:  opts.Clock,
		Delay:  opts.DebounceDelay,
		Post:   c.actor.Post,
		Fire:   c.push,
		Logger: opts.Logger,
	})
	return c
}

// Start loads the identity and, if a leaderboard was joined in an earlier
// run, fetches it. A failed fetch is not retried until the next opportunity.
// If the identity cannot be read the session stays unstarted and Start may
// be called again.
func (c *Controller) Start(ctx context.Context) error {
	var (
		first   bool
		id      models.Identity
		loadErr error
	)
	err := c.actor.Do(ctx, func() {
		if c.started {
			return
		}
		if id, loadErr = c.ids.Load(ctx); loadErr != nil {
			return
		}
		c.started = true
		first = true
		c.emitLocked(ctx)
	})
	if err != nil {
		return err
	}
	if loadErr != nil {
		return fmt.Errorf("load identity: %w", loadErr)
	}
	if !first {
		return nil
	}
	c.logger.WithFields(logrus.Fields{
		"user_id":        id.UserID,
		"leaderboard_id": id.LeaderboardID,
	}).Info("session started")

	if id.InLeaderboard() {
		_, _ = c.refresh(ctx)
	}
	return nil
}

// Authorized marks usage authorization as granted and replays a held join.
func (c *Controller) Authorized(ctx context.Context) error {
	var pending string
	err := c.actor.Do(ctx, func() {
		c.authorized = true
		pending, c.pendingJoin = c.pendingJoin, ""
		c.emitLocked(ctx)
	})
	if err != nil {
		return err
	}
	if pending != "" {
		c.logger.WithField("leaderboard_id", pending).Info("replaying held join")
		_, _ = c.Join(ctx, pending)
	}
	return nil
}

// Share returns the share link of the current leaderboard, creating one
// first if the user has none. Concurrent callers share a single create: the
// others wait for it and then re-check membership.
func (c *Controller) Share(ctx context.Context) (string, error) {
	for {
		var (
			id      models.Identity
			loadErr error
			wait    chan struct{}
			owner   chan struct{}
		)
		err := c.actor.Do(ctx, func() {
			id, loadErr = c.ids.Load(ctx)
			switch {
			case loadErr != nil, id.InLeaderboard():
			case c.creating != nil:
				wait = c.creating
			default:
				c.creating = make(chan struct{})
				owner = c.creating
			}
		})
		if err != nil {
			// the closure may still run after ctx is done; queued behind it,
			// this releases a create it claimed
			c.actor.Post(func() {
				if owner != nil {
					c.releaseCreateLocked(owner)
				}
			})
			return "", err
		}
		if loadErr != nil {
			return "", fmt.Errorf("load identity: %w", loadErr)
		}
		if id.InLeaderboard() {
			return leaderboard.ShareLink(c.scheme, id.LeaderboardID), nil
		}
		if wait != nil {
			select {
			case <-wait:
				continue
			case <-c.actor.Done():
				return "", actor.ErrStopped
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		return c.create(ctx, owner)
	}
}

// create runs the Share create. owner is closed once membership has been
// recorded or the create failed.
func (c *Controller) create(ctx context.Context, owner chan struct{}) (string, error) {
	defer c.actor.Post(func() { c.releaseCreateLocked(owner) })

	done := c.beginLoading(ctx)
	defer done()

	if _, err := c.ensureRegistered(ctx); err != nil {
		return "", err
	}
	leaderboardID, err := c.rec.Create(ctx, models.DefaultLeaderboardName)
	c.noteErr(err)
	if err != nil {
		return "", err
	}
	return leaderboard.ShareLink(c.scheme, leaderboardID), nil
}

func (c *Controller) releaseCreateLocked(owner chan struct{}) {
	if c.creating == owner {
		c.creating = nil
	}
	close(owner)
}

// Join switches to leaderboardID. A nil view with an error means the join
// failed and the previous membership is unchanged; EventJoinFailed is
// emitted as well. Before Authorized the id is held and ErrJoinPending is
// returned.
func (c *Controller) Join(ctx context.Context, leaderboardID string) (*models.LeaderboardView, error) {
	held := false
	err := c.actor.Do(ctx, func() {
		if c.authorized {
			return
		}
		held = true
		c.pendingJoin = leaderboardID
		c.emitLocked(ctx)
	})
	if err != nil {
		return nil, err
	}
	if held {
		return nil, ErrJoinPending
	}

	view, err := c.join(ctx, leaderboardID)
	if err != nil {
		c.actor.Post(func() {
			c.onEvent(Event{
				Kind:          EventJoinFailed,
				Snapshot:      c.snapshotLocked(c.ctx),
				LeaderboardID: leaderboardID,
				Err:           err,
			})
		})
	}
	return view, err
}

func (c *Controller) join(ctx context.Context, leaderboardID string) (*models.LeaderboardView, error) {
	done := c.beginLoading(ctx)
	defer done()

	if _, err := c.ensureRegistered(ctx); err != nil {
		return nil, err
	}
	view, err := c.rec.Join(ctx, leaderboardID)
	c.noteErr(err)
	return view, err
}

// HandleDeepLink joins the leaderboard named by a share link.
func (c *Controller) HandleDeepLink(ctx context.Context, link string) (*models.LeaderboardView, error) {
	leaderboardID, err := leaderboard.ParseJoinLink(c.scheme, link)
	if err != nil {
		c.actor.Post(func() {
			c.onEvent(Event{Kind: EventJoinFailed, Snapshot: c.snapshotLocked(c.ctx), Err: err})
		})
		return nil, err
	}
	return c.Join(ctx, leaderboardID)
}

// UsageChanged reports today's absolute usage. It does not block.
func (c *Controller) UsageChanged(minutes int) {
	c.actor.Post(func() {
		c.rec.SetLocalMinutes(c.ctx, minutes)
		c.deb.Update(minutes)
		c.emitLocked(c.ctx)
	})
}

// push is the debouncer's Fire and runs on the actor.
func (c *Controller) push(minutes int) {
	c.goBackground(func(ctx context.Context) {
		logger := c.logger.WithField("minutes", minutes)
		userID, err := c.ensureRegistered(ctx)
		if err != nil {
			logger.WithError(err).Warn("usage push skipped")
			return
		}
		logger = logger.WithField("user_id", userID)
		if err := c.client.UpdateDailyUsage(ctx, userID, c.clock.Now().Day(), minutes); err != nil {
			c.noteErr(err)
			logger.WithError(err).Warn("failed to push daily usage")
			return
		}
		logger.Debug("pushed daily usage")
		_, _ = c.refresh(ctx)
	})
}

// SetPlayerName renames the local player at once and upserts the user in the
// background. A failed upsert is logged, not rolled back.
func (c *Controller) SetPlayerName(ctx context.Context, name string) error {
	var id models.Identity
	err := c.actor.Do(ctx, func() {
		id = c.ids.SetPlayerName(ctx, name)
		c.rec.SyncSelf(ctx)
		c.emitLocked(ctx)
	})
	if err != nil {
		return err
	}
	if id.UserID == uuid.Nil {
		// identity unreadable; the next ensureRegistered carries the name
		return nil
	}
	c.goBackground(func(ctx context.Context) {
		if _, err := c.client.CreateOrUpdateUser(ctx, id.UserID, id.PlayerName); err != nil {
			c.noteErr(err)
			c.logger.WithError(err).WithField("user_id", id.UserID).Warn("failed to update player name")
			return
		}
		c.actor.Post(func() { c.registered = true })
	})
	return nil
}

// SetLeaderboardName renames the current leaderboard locally and pushes the
// name in the background. It does nothing without a leaderboard.
func (c *Controller) SetLeaderboardName(ctx context.Context, name string) error {
	var (
		leaderboardID string
		ok            bool
	)
	err := c.actor.Do(ctx, func() {
		leaderboardID, ok = c.rec.BeginRename(ctx, name)
		if ok {
			c.emitLocked(ctx)
		}
	})
	if err != nil || !ok {
		return err
	}
	c.goBackground(func(ctx context.Context) {
		if _, err := c.ensureRegistered(ctx); err != nil {
			c.logger.WithError(err).Debug("renaming without a registered user")
		}
		if err := c.rec.FinishRename(ctx, leaderboardID, name); err != nil {
			c.noteErr(err)
			c.logger.WithError(err).WithField("leaderboard_id", leaderboardID).Warn("failed to rename leaderboard")
		}
	})
	return nil
}

// Refresh refetches the current leaderboard.
func (c *Controller) Refresh(ctx context.Context) (*models.LeaderboardView, error) {
	return c.refresh(ctx)
}

func (c *Controller) refresh(ctx context.Context) (*models.LeaderboardView, error) {
	done := c.beginLoading(ctx)
	defer done()

	if _, err := c.ensureRegistered(ctx); err != nil {
		return nil, err
	}
	view, err := c.rec.Fetch(ctx)
	c.noteErr(err)
	return view, err
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.actor.Do(ctx, func() { snap = c.snapshotLocked(ctx) })
	return snap, err
}

// Close cancels any pending usage push, stops background work and waits for
// it to finish.
func (c *Controller) Close() {
	_ = c.actor.Do(context.Background(), func() {
		c.deb.Stop()
		c.setWatchLocked("")
	})

	c.bgMu.Lock()
	c.closed = true
	c.bgMu.Unlock()

	c.cancel()
	c.bg.Wait()
	c.actor.Close()
}

// ensureRegistered creates the remote user row before the first remote
// operation of the session, and again after the server rejected the session.
// It returns the local user id, and fails without a remote call when the
// identity cannot be read.
func (c *Controller) ensureRegistered(ctx context.Context) (uuid.UUID, error) {
	var (
		id         models.Identity
		loadErr    error
		registered bool
	)
	if err := c.actor.Do(ctx, func() {
		id, loadErr = c.ids.Load(ctx)
		registered = c.registered
	}); err != nil {
		return uuid.Nil, err
	}
	if loadErr != nil {
		return uuid.Nil, fmt.Errorf("load identity: %w", loadErr)
	}
	if registered {
		return id.UserID, nil
	}
	if _, err := c.client.CreateOrUpdateUser(ctx, id.UserID, id.PlayerName); err != nil {
		return uuid.Nil, fmt.Errorf("register user %s: %w", id.UserID, err)
	}
	c.logger.WithField("user_id", id.UserID).Debug("registered user")
	return id.UserID, c.actor.Do(ctx, func() { c.registered = true })
}

// noteErr forgets the registration when the server no longer accepts it.
func (c *Controller) noteErr(err error) {
	if errors.Is(err, remote.ErrUnauthenticated) {
		c.actor.Post(func() { c.registered = false })
	}
}

// beginLoading raises the Loading flag until the returned func is called.
func (c *Controller) beginLoading(ctx context.Context) func() {
	err := c.actor.Do(ctx, func() {
		c.loading++
		c.emitLocked(ctx)
	})
	if err != nil {
		return func() {}
	}
	return func() {
		_ = c.actor.Do(context.WithoutCancel(ctx), func() {
			c.loading--
			c.syncWatchLocked(ctx)
			c.emitLocked(ctx)
		})
	}
}

func (c *Controller) goBackground(fn func(ctx context.Context)) {
	c.bgMu.Lock()
	defer c.bgMu.Unlock()
	if c.closed {
		return
	}
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn(c.ctx)
	}()
}

// syncWatchLocked follows the current leaderboard with the roster watcher.
func (c *Controller) syncWatchLocked(ctx context.Context) {
	if c.watcher == nil {
		return
	}
	c.setWatchLocked(c.ids.Get(ctx).LeaderboardID)
}

func (c *Controller) setWatchLocked(leaderboardID string) {
	if c.watcher == nil || c.watching == leaderboardID {
		return
	}
	if c.stopWatch != nil {
		c.stopWatch()
		c.stopWatch = nil
	}
	c.watching = leaderboardID
	if leaderboardID == "" {
		return
	}

	ctx, cancel := context.WithCancel(c.ctx)
	c.stopWatch = cancel
	logger := c.logger.WithField("leaderboard_id", leaderboardID)
	c.goBackground(func(context.Context) {
		defer cancel()
		err := c.watcher.WatchRoster(ctx, leaderboardID, func(change models.RosterChange) {
			logger.WithField("type", change.Type).Debug("roster changed")
			c.goBackground(func(ctx context.Context) { _, _ = c.refresh(ctx) })
		})
		if remote.IsNotFound(err) {
			// the fetch confirms and clears the membership
			c.goBackground(func(ctx context.Context) { _, _ = c.refresh(ctx) })
		} else if err != nil && ctx.Err() == nil {
			logger.WithError(err).Warn("roster watch ended")
		}
	})
}

func (c *Controller) snapshotLocked(ctx context.Context) Snapshot {
	id := c.ids.Get(ctx)
	snap := Snapshot{
		Loading:     c.loading > 0,
		Identity:    id,
		PendingJoin: c.pendingJoin,
	}
	switch {
	case !c.started:
		snap.State = StateUninitialized
	case !c.authorized:
		snap.State = StateAuthorizing
	case id.InLeaderboard():
		snap.State = StateInLeaderboard
	default:
		snap.State = StateNoLeaderboard
	}
	if id.InLeaderboard() {
		snap.Leaderboard = c.rec.View()
		snap.ShareLink = leaderboard.ShareLink(c.scheme, id.LeaderboardID)
	}
	return snap
}

func (c *Controller) emitLocked(ctx context.Context) {
	c.onEvent(Event{Kind: EventChanged, Snapshot: c.snapshotLocked(ctx)})
}
