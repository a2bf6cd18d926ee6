// Package store holds the authoritative in-memory poll collection. One merge
// path applies both broadcast events and mutation responses, so "what I just
// did" and "what the broadcast says happened" can never diverge.
package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/livepoll/pollstream/internal/api"
	"github.com/livepoll/pollstream/internal/events"
	"github.com/livepoll/pollstream/internal/models"
)

// Client is the slice of the mutation client the store drives.
type Client interface {
	ListPolls(ctx context.Context) ([]models.Poll, error)
	CreatePoll(ctx context.Context, req api.CreatePollRequest) (models.Poll, error)
	UpdatePoll(ctx context.Context, pollUUID string, req api.UpdatePollRequest) (models.Poll, error)
	DeletePoll(ctx context.Context, pollUUID string) error
	AddOptions(ctx context.Context, pollUUID string, options []api.NewOption) (models.Poll, error)
	RemoveOptions(ctx context.Context, pollUUID string, optionUUIDs []string) (models.Poll, error)
	Vote(ctx context.Context, pollUUID, optionUUID string) (api.VoteResponse, error)
	ToggleLike(ctx context.Context, pollUUID string) (api.LikeResponse, error)
}

type subEntry struct {
	id int
	fn func()
}

// Store is the only writer to the poll collection. All merges are serialized
// behind one mutex; Apply never blocks on I/O and never returns an error to
// the stream.
type Store struct {
	client Client
	logger *zap.Logger

	mu      sync.Mutex
	polls   []models.Poll // most-recently-created first
	loading bool
	votes   map[string]models.VotedPoll
	likes   map[string]struct{}
	viewer  map[string]*viewerTrack
	subs    []subEntry
	nextSub int
}

// New creates an empty store over a mutation client.
func New(client Client, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
		viewer: make(map[string]*viewerTrack),
	}
}

// SubscribeChanges registers a callback fired after every state change and
// returns its unregister function. Callbacks run outside the store lock.
func (s *Store) SubscribeChanges(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextSub
	s.nextSub++
	s.subs = append(s.subs, subEntry{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	subs := append([]subEntry{}, s.subs...)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.fn()
	}
}

// Loading reports whether a bulk load is in flight.
func (s *Store) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Snapshot returns a deep copy of the collection in display order.
func (s *Store) Snapshot() []models.Poll {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Poll, len(s.polls))
	for i := range s.polls {
		out[i] = s.polls[i].Clone()
	}
	return out
}

// ViewerState returns the viewer's state for one poll.
func (s *Store) ViewerState(pollUUID string) ViewerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.viewer[pollUUID]; ok {
		return t.state
	}
	return ViewerState{}
}

// Load replaces the entire collection with a fresh fetch. Used at startup,
// after reconnect gaps, and after identity changes.
func (s *Store) Load(ctx context.Context) error {
	s.mu.Lock()
	s.loading = true
	s.mu.Unlock()
	s.notify()

	polls, err := s.client.ListPolls(ctx)

	s.mu.Lock()
	s.loading = false
	if err == nil {
		s.polls = polls
		s.rederiveLocked()
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		s.logger.Error("poll load failed", zap.Error(err))
	}
	return err
}

// Refresh refetches without flipping the loading flag, so the UI keeps the
// current list on screen while it updates.
func (s *Store) Refresh(ctx context.Context) error {
	polls, err := s.client.ListPolls(ctx)
	if err != nil {
		s.logger.Warn("poll refresh failed", zap.Error(err))
		return err
	}
	s.mu.Lock()
	s.polls = polls
	s.rederiveLocked()
	s.mu.Unlock()
	s.notify()
	return nil
}

// SetProfile installs the viewer's vote/like overlays (nil means signed out)
// and re-derives every poll's viewer state from them.
func (s *Store) SetProfile(user *models.CurrentUser) {
	s.mu.Lock()
	if user == nil {
		s.votes = nil
		s.likes = nil
	} else {
		s.votes = user.VoteByPoll()
		s.likes = user.LikedSet()
	}
	s.rederiveLocked()
	s.mu.Unlock()
	s.notify()
}

// rederiveLocked rebuilds the per-poll viewer machines from the overlays.
// Runs on identity change and bulk load, never on count-only merges.
func (s *Store) rederiveLocked() {
	tracks := make(map[string]*viewerTrack, len(s.polls))
	for _, p := range s.polls {
		tracks[p.UUID] = newViewerTrack(p, s.votes, s.likes)
	}
	s.viewer = tracks
}

// Apply is the single merge entrypoint for broadcast events and mutation
// response snapshots alike. Unknown or inapplicable events are ignored;
// duplicate creations and deletions are idempotent.
func (s *Store) Apply(evt events.Event) {
	s.mu.Lock()
	changed := s.applyLocked(evt)
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Store) applyLocked(evt events.Event) bool {
	switch e := evt.(type) {
	case events.PollCreated:
		if s.indexOfLocked(e.Poll.UUID) >= 0 {
			return false // duplicate delivery
		}
		s.polls = append([]models.Poll{e.Poll.Clone()}, s.polls...)
		s.viewer[e.Poll.UUID] = newViewerTrack(e.Poll, s.votes, s.likes)
		return true

	case events.PollDeleted:
		i := s.indexOfLocked(e.PollUUID)
		if i < 0 {
			return false
		}
		s.polls = append(s.polls[:i], s.polls[i+1:]...)
		delete(s.viewer, e.PollUUID)
		return true

	case events.PollUpdated:
		i := s.indexOfLocked(e.Patch.PollUUID)
		if i < 0 {
			return false
		}
		if s.staleLocked(s.polls[i], e.Patch.VersionID) {
			return false
		}
		s.polls[i] = mergePoll(s.polls[i], e.Patch)
		s.observeOptionsLocked(s.polls[i])
		return true

	case events.PollOptionsChanged:
		i := s.indexOfLocked(e.Patch.PollUUID)
		if i < 0 {
			return false
		}
		if s.staleLocked(s.polls[i], e.Patch.VersionID) {
			return false
		}
		s.polls[i] = applyOptionsChanged(s.polls[i], e.Patch)
		s.observeOptionsLocked(s.polls[i])
		return true

	case events.VoteRecorded:
		i := s.indexOfLocked(e.PollUUID)
		if i < 0 {
			return false
		}
		s.polls[i] = applySummary(s.polls[i], e.Summary)
		return true

	case events.LikeChanged:
		i := s.indexOfLocked(e.PollUUID)
		if i < 0 {
			return false
		}
		if e.Likes != nil {
			s.polls[i].Likes = *e.Likes
		} else if e.Liked {
			// Fallback for a payload without the count; the server's
			// absolute count wins whenever present.
			s.polls[i].Likes++
		} else if s.polls[i].Likes > 0 {
			s.polls[i].Likes--
		}
		return true

	default:
		// connected/pong carry no state change
		return false
	}
}

// staleLocked drops events whose version is not newer than the local poll's.
// Vote summaries carry no version and keep latest-wins semantics.
func (s *Store) staleLocked(p models.Poll, version *int64) bool {
	if version == nil || p.VersionID == 0 {
		return false
	}
	if *version <= p.VersionID {
		s.logger.Debug("stale event dropped",
			zap.String("poll", p.UUID),
			zap.Int64("event_version", *version),
			zap.Int64("local_version", p.VersionID),
		)
		return true
	}
	return false
}

func (s *Store) observeOptionsLocked(p models.Poll) {
	if t, ok := s.viewer[p.UUID]; ok {
		t.observeOptions(p)
	} else {
		s.viewer[p.UUID] = newViewerTrack(p, s.votes, s.likes)
	}
}

// trackLocked returns the poll's viewer tracker, creating one from the
// overlays when the poll exists but has not been tracked yet. Nil when the
// poll is unknown.
func (s *Store) trackLocked(pollUUID string) *viewerTrack {
	if t, ok := s.viewer[pollUUID]; ok {
		return t
	}
	i := s.indexOfLocked(pollUUID)
	if i < 0 {
		return nil
	}
	t := newViewerTrack(s.polls[i], s.votes, s.likes)
	s.viewer[pollUUID] = t
	return t
}

func (s *Store) indexOfLocked(pollUUID string) int {
	for i := range s.polls {
		if s.polls[i].UUID == pollUUID {
			return i
		}
	}
	return -1
}

// --- Mutations. Every successful response flows through Apply, the same
// code path the broadcasts take.

// Create submits a new poll. The creation broadcast inserts it for everyone;
// applying the response here too is harmless because creation is idempotent.
func (s *Store) Create(ctx context.Context, title string, optionNames []string) (models.Poll, error) {
	req := api.CreatePollRequest{Title: title}
	for _, name := range optionNames {
		req.Options = append(req.Options, api.NewOption{OptionName: name})
	}
	poll, err := s.client.CreatePoll(ctx, req)
	if err != nil {
		return models.Poll{}, err
	}
	s.Apply(events.PollCreated{Poll: poll})
	return poll, nil
}

// Update edits a poll under its version check. A Conflict failure is
// surfaced untouched; the caller refetches and retries.
func (s *Store) Update(ctx context.Context, pollUUID string, req api.UpdatePollRequest) error {
	poll, err := s.client.UpdatePoll(ctx, pollUUID, req)
	if err != nil {
		return err
	}
	s.Apply(events.PollUpdated{Patch: events.PatchFromPoll(poll)})
	return nil
}

// Delete removes a poll.
func (s *Store) Delete(ctx context.Context, pollUUID string) error {
	if err := s.client.DeletePoll(ctx, pollUUID); err != nil {
		return err
	}
	s.Apply(events.PollDeleted{PollUUID: pollUUID})
	return nil
}

// AddOptions appends options to a poll. The response is a full server
// snapshot with recomputed tallies, so it merges as a poll update; the
// preserve-votes handling is reserved for broadcasts, which carry none.
func (s *Store) AddOptions(ctx context.Context, pollUUID string, names []string) error {
	opts := make([]api.NewOption, 0, len(names))
	for _, name := range names {
		opts = append(opts, api.NewOption{OptionName: name})
	}
	poll, err := s.client.AddOptions(ctx, pollUUID, opts)
	if err != nil {
		return err
	}
	s.Apply(events.PollUpdated{Patch: events.PatchFromPoll(poll)})
	return nil
}

// RemoveOptions deletes options from a poll and accepts the server's
// recomputed votes and total from the response snapshot.
func (s *Store) RemoveOptions(ctx context.Context, pollUUID string, optionUUIDs []string) error {
	poll, err := s.client.RemoveOptions(ctx, pollUUID, optionUUIDs)
	if err != nil {
		return err
	}
	s.Apply(events.PollUpdated{Patch: events.PatchFromPoll(poll)})
	return nil
}

// Vote casts the viewer's vote and merges the returned summary snapshot.
// The vote is recorded in the profile overlay as well, so a later bulk
// refresh re-derives the same standing instead of reverting to the profile
// as fetched at sign-in.
func (s *Store) Vote(ctx context.Context, pollUUID, optionUUID string) error {
	resp, err := s.client.Vote(ctx, pollUUID, optionUUID)
	if err != nil {
		return err
	}
	s.Apply(events.VoteRecorded{PollUUID: pollUUID, OptionUUID: optionUUID, Summary: resp.Summary})

	s.mu.Lock()
	if s.votes == nil {
		s.votes = make(map[string]models.VotedPoll)
	}
	s.votes[pollUUID] = models.VotedPoll{
		PollUUID:   pollUUID,
		OptionUUID: optionUUID,
		TotalVotes: resp.Summary.TotalVotes,
		Summary:    resp.Summary,
	}
	if t := s.trackLocked(pollUUID); t != nil {
		t.voted(optionUUID)
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// ToggleLike flips the viewer's like. The response carries no authoritative
// count, so the tally itself is left to the like broadcast; only the
// viewer's own flag updates here, in both the tracker and the overlay so a
// refresh keeps it.
func (s *Store) ToggleLike(ctx context.Context, pollUUID string) error {
	resp, err := s.client.ToggleLike(ctx, pollUUID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	if resp.IsLiked {
		if s.likes == nil {
			s.likes = make(map[string]struct{})
		}
		s.likes[pollUUID] = struct{}{}
	} else {
		delete(s.likes, pollUUID)
	}
	if t := s.trackLocked(pollUUID); t != nil {
		t.state.HasLiked = resp.IsLiked
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// ConfirmVote restores the viewer's pre-change choice after an option-set
// change, when that option still exists. Returns whether a vote stands.
func (s *Store) ConfirmVote(pollUUID string) bool {
	s.mu.Lock()
	var ok bool
	if t, tracked := s.viewer[pollUUID]; tracked {
		if i := s.indexOfLocked(pollUUID); i >= 0 {
			ok = t.confirm(s.polls[i])
		}
	}
	s.mu.Unlock()
	s.notify()
	return ok
}

// ClearPending dismisses an options-changed notice without voting.
func (s *Store) ClearPending(pollUUID string) {
	s.mu.Lock()
	if t, ok := s.viewer[pollUUID]; ok {
		t.dismiss()
	}
	s.mu.Unlock()
	s.notify()
}
