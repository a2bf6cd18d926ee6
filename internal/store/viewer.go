package store

import "github.com/livepoll/pollstream/internal/models"

// OptionChange describes how a poll's option set changed while the viewer
// had a standing vote.
type OptionChange int

const (
	OptionChangeNone OptionChange = iota
	OptionChangeAdded
	OptionChangeRemoved
)

// ViewerState is the viewer's relationship to one poll. When OptionsChanged
// is set the prior vote is cleared and the viewer is asked to confirm or
// re-pick (the OptionsChangedPending state).
type ViewerState struct {
	HasVoted        bool
	VotedOptionUUID string
	HasLiked        bool
	OptionsChanged  OptionChange
}

// DeriveViewerState computes the viewer's state for a poll from the profile
// overlays. Pure; no stored side effect. A vote on an option that no longer
// exists counts as not voted: the option was removed after the vote, and the
// viewer should be asked again.
func DeriveViewerState(poll models.Poll, votes map[string]models.VotedPoll, likes map[string]struct{}) ViewerState {
	var st ViewerState
	if _, ok := likes[poll.UUID]; ok {
		st.HasLiked = true
	}
	if rec, ok := votes[poll.UUID]; ok {
		if poll.Option(rec.OptionUUID) != nil {
			st.HasVoted = true
			st.VotedOptionUUID = rec.OptionUUID
		} else {
			st.OptionsChanged = OptionChangeRemoved
		}
	}
	return st
}

// viewerTrack is the per-poll state machine behind ViewerState. It keys on
// option-set membership, not vote counts, so live tallying never disturbs
// the viewer's standing; only structural changes and identity changes do.
type viewerTrack struct {
	state       ViewerState
	lastVoted   string // choice held before a pending option change
	optionCount int
}

func newViewerTrack(poll models.Poll, votes map[string]models.VotedPoll, likes map[string]struct{}) *viewerTrack {
	t := &viewerTrack{
		state:       DeriveViewerState(poll, votes, likes),
		optionCount: len(poll.Options),
	}
	if rec, ok := votes[poll.UUID]; ok && t.state.OptionsChanged == OptionChangeRemoved {
		t.lastVoted = rec.OptionUUID
	}
	return t
}

// observeOptions feeds an option-set size change into the machine:
// Voted -> OptionsChangedPending, clearing the standing vote. Count-only
// updates leave the machine untouched.
func (t *viewerTrack) observeOptions(poll models.Poll) {
	count := len(poll.Options)
	if count == t.optionCount {
		return
	}
	if t.state.HasVoted {
		if count > t.optionCount {
			t.state.OptionsChanged = OptionChangeAdded
		} else {
			t.state.OptionsChanged = OptionChangeRemoved
		}
		t.lastVoted = t.state.VotedOptionUUID
		t.state.HasVoted = false
		t.state.VotedOptionUUID = ""
	}
	t.optionCount = count
}

// voted records a successful local cast: Unvoted|Pending -> Voted.
func (t *viewerTrack) voted(optionUUID string) {
	t.state.HasVoted = true
	t.state.VotedOptionUUID = optionUUID
	t.state.OptionsChanged = OptionChangeNone
	t.lastVoted = ""
}

// confirm restores the pre-change choice if it still exists:
// OptionsChangedPending -> Voted, or -> Unvoted when the option is gone.
func (t *viewerTrack) confirm(poll models.Poll) bool {
	if t.state.OptionsChanged == OptionChangeNone {
		return t.state.HasVoted
	}
	if t.lastVoted != "" && poll.Option(t.lastVoted) != nil {
		t.voted(t.lastVoted)
		return true
	}
	t.dismiss()
	return false
}

// dismiss acknowledges the pending change without restoring a vote:
// OptionsChangedPending -> Unvoted.
func (t *viewerTrack) dismiss() {
	t.state.OptionsChanged = OptionChangeNone
	t.state.HasVoted = false
	t.state.VotedOptionUUID = ""
	t.lastVoted = ""
}
