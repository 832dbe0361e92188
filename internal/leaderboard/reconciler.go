// Package leaderboard reconciles the remote roster with local identity into a
// renderable LeaderboardView.
//
// A Reconciler shares an actor with its owner. Methods that talk to the
// remote store (Fetch, Create, Join, Rename, FinishRename) block and must be
// called off the actor; they hop onto it only to read or apply state. Methods
// documented as running on the actor must only be called from a closure the
// actor is executing.
package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/screenbreakers/internal/actor"
	"github.com/jason-s-yu/screenbreakers/internal/identity"
	"github.com/jason-s-yu/screenbreakers/internal/models"
	"github.com/jason-s-yu/screenbreakers/internal/remote"
)

// Reconciler owns the current LeaderboardView.
type Reconciler struct {
	actor  *actor.Actor
	client remote.Client
	ids    *identity.Store
	logger logrus.FieldLogger

	// actor-owned
	view          *models.LeaderboardView
	localMinutes  int
	hasLocal      bool
	renamePending int
}

func New(a *actor.Actor, client remote.Client, ids *identity.Store, logger logrus.FieldLogger) *Reconciler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Reconciler{
		actor:  a,
		client: client,
		ids:    ids,
		logger: logger.WithField("component", "reconciler"),
	}
}

// Fetch reloads the roster of the current leaderboard. With no leaderboard it
// returns (nil, nil). NotFound clears the membership and the view together;
// any other failure drops the view but keeps the membership.
func (r *Reconciler) Fetch(ctx context.Context) (*models.LeaderboardView, error) {
	var (
		id      models.Identity
		loadErr error
	)
	if err := r.actor.Do(ctx, func() { id, loadErr = r.ids.Load(ctx) }); err != nil {
		return nil, err
	}
	if loadErr != nil {
		return nil, loadErr
	}
	if !id.InLeaderboard() {
		return nil, nil
	}

	members, fetchErr := r.client.GetLeaderboardData(ctx, id.LeaderboardID)

	var (
		view *models.LeaderboardView
		err  error
	)
	applyErr := r.actor.Do(ctx, func() {
		view, err = r.apply(ctx, id.LeaderboardID, members, fetchErr)
	})
	if applyErr != nil {
		return nil, applyErr
	}
	return view, err
}

// apply runs on the actor.
func (r *Reconciler) apply(ctx context.Context, leaderboardID string, members []models.Member, fetchErr error) (*models.LeaderboardView, error) {
	cur := r.ids.Get(ctx)
	logger := r.logger.WithField("leaderboard_id", leaderboardID)

	if cur.LeaderboardID != leaderboardID {
		// membership moved on while the request was in flight
		logger.WithField("current_leaderboard_id", cur.LeaderboardID).Debug("discarding stale roster")
		return r.view.Clone(), nil
	}

	if fetchErr != nil {
		r.view = nil
		if errors.Is(fetchErr, remote.ErrNotFound) {
			logger.Info("leaderboard no longer exists, clearing membership")
			r.ids.ClearLeaderboard(ctx)
			return nil, fetchErr
		}
		logger.WithError(fetchErr).Warn("failed to fetch leaderboard")
		return nil, fetchErr
	}

	name := cur.LeaderboardName
	if len(members) > 0 && members[0].LeaderboardName != "" {
		name = members[0].LeaderboardName
	}
	if r.renamePending > 0 {
		// a local rename is on its way; the server has not seen it yet
		name = cur.LeaderboardName
	} else if name != cur.LeaderboardName {
		cur = r.ids.SetLeaderboardName(ctx, name)
	}

	entries := make([]models.Entry, 0, len(members)+1)
	seen := make(map[string]struct{}, len(members))
	for _, m := range members {
		entry := models.Entry{ID: m.UserID.String(), Name: m.UserName, Minutes: m.TodayMinutes}
		if _, dup := seen[entry.ID]; dup {
			continue
		}
		seen[entry.ID] = struct{}{}
		entries = append(entries, entry)
	}
	if _, ok := seen[cur.UserID.String()]; !ok {
		// not registered on the server yet
		entries = append(entries, models.Entry{ID: cur.UserID.String(), Name: cur.PlayerName})
	}

	r.view = &models.LeaderboardView{ID: leaderboardID, Name: name, Entries: entries}
	r.refreshSelf(cur)
	logger.WithField("members", len(entries)).Debug("leaderboard reconciled")
	return r.view.Clone(), nil
}

// Create allocates a leaderboard named name, records it locally and fetches
// its roster. Only a failed creation is returned as an error; a failed
// follow-up fetch is logged by Fetch.
func (r *Reconciler) Create(ctx context.Context, name string) (string, error) {
	leaderboardID, err := r.client.CreateLeaderboard(ctx, name)
	if err != nil {
		return "", fmt.Errorf("create leaderboard: %w", err)
	}
	if err := r.actor.Do(ctx, func() {
		r.ids.SetLeaderboard(ctx, leaderboardID, name)
		r.view = nil
	}); err != nil {
		return "", err
	}
	r.logger.WithField("leaderboard_id", leaderboardID).Info("created leaderboard")

	_, _ = r.Fetch(ctx)
	return leaderboardID, nil
}

// Join switches membership to leaderboardID and returns the fetched view.
// A nil view means the join did not succeed; the previous membership is left
// untouched when the server rejects the id.
func (r *Reconciler) Join(ctx context.Context, leaderboardID string) (*models.LeaderboardView, error) {
	if leaderboardID == "" {
		return nil, fmt.Errorf("join leaderboard: %w: empty id", remote.ErrNotFound)
	}
	if err := r.client.JoinLeaderboard(ctx, leaderboardID); err != nil {
		r.logger.WithError(err).WithField("leaderboard_id", leaderboardID).Warn("failed to join leaderboard")
		return nil, fmt.Errorf("join leaderboard: %w", err)
	}

	if err := r.actor.Do(ctx, func() {
		cur := r.ids.Get(ctx)
		if cur.LeaderboardID == leaderboardID {
			return
		}
		r.ids.SetLeaderboard(ctx, leaderboardID, "")
		r.view = nil
	}); err != nil {
		return nil, err
	}

	view, err := r.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("join leaderboard: %w", err)
	}
	return view, nil
}

// Rename applies name locally and pushes it to the server. The error is
// informational; the local name is never rolled back.
func (r *Reconciler) Rename(ctx context.Context, name string) error {
	var (
		leaderboardID string
		ok            bool
	)
	if err := r.actor.Do(ctx, func() { leaderboardID, ok = r.BeginRename(ctx, name) }); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return r.FinishRename(ctx, leaderboardID, name)
}

// BeginRename runs on the actor. It applies name to the identity and the view
// and holds off remote name overwrites until FinishRename. ok is false when
// there is no leaderboard to rename.
func (r *Reconciler) BeginRename(ctx context.Context, name string) (leaderboardID string, ok bool) {
	cur := r.ids.Get(ctx)
	if !cur.InLeaderboard() {
		return "", false
	}
	r.ids.SetLeaderboardName(ctx, name)
	if r.view != nil {
		r.view = r.view.Clone()
		r.view.Name = name
	}
	r.renamePending++
	return cur.LeaderboardID, true
}

// FinishRename pushes a name started with BeginRename. It is not retried.
func (r *Reconciler) FinishRename(ctx context.Context, leaderboardID, name string) error {
	err := r.client.UpdateLeaderboardName(ctx, leaderboardID, name)
	// the pending count must drop even if ctx is already done
	r.actor.Post(func() { r.renamePending-- })
	if err != nil {
		return fmt.Errorf("rename leaderboard %s: %w", leaderboardID, err)
	}
	return nil
}

// SetLocalMinutes runs on the actor. The local row shows minutes from now on,
// whatever the server last reported.
func (r *Reconciler) SetLocalMinutes(ctx context.Context, minutes int) {
	r.localMinutes = minutes
	r.hasLocal = true
	r.refreshSelf(r.ids.Get(ctx))
}

// SyncSelf runs on the actor. It re-applies the local player name and minutes
// to the local row, e.g. after a player rename.
func (r *Reconciler) SyncSelf(ctx context.Context) {
	r.refreshSelf(r.ids.Get(ctx))
}

// View runs on the actor and returns a copy of the current view.
func (r *Reconciler) View() *models.LeaderboardView {
	return r.view.Clone()
}

// Reset runs on the actor and drops the view without touching membership.
func (r *Reconciler) Reset() {
	r.view = nil
}

func (r *Reconciler) refreshSelf(cur models.Identity) {
	if r.view == nil {
		return
	}
	selfID := cur.UserID.String()
	view := r.view.Clone()
	for i := range view.Entries {
		if view.Entries[i].ID != selfID {
			continue
		}
		view.Entries[i].Name = cur.PlayerName
		if r.hasLocal {
			view.Entries[i].Minutes = r.localMinutes
		}
	}
	models.SortEntries(view.Entries)
	r.view = view
}
