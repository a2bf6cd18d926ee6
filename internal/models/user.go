package models

import "time"

// VotedPoll records which option the viewer chose in a poll, with the vote
// distribution as known at vote time. Sourced from the profile endpoint; the
// store treats it as authoritative for "did I vote", never for tallies.
type VotedPoll struct {
	PollUUID   string      `json:"poll_uuid"`
	OptionUUID string      `json:"option_uuid"`
	TotalVotes int         `json:"total_votes"`
	Summary    VoteSummary `json:"summary"`
}

// CurrentUser is the authenticated viewer's profile.
type CurrentUser struct {
	ID             int64       `json:"id"`
	Name           string      `json:"name"`
	Email          string      `json:"email"`
	UUID           string      `json:"uuid"`
	CreatedAt      time.Time   `json:"created_at"`
	LikedPollUUIDs []string    `json:"liked_poll_uuids"`
	VotedPolls     []VotedPoll `json:"voted_polls"`
}

// VoteByPoll indexes the profile's vote records by poll uuid.
func (u *CurrentUser) VoteByPoll() map[string]VotedPoll {
	out := make(map[string]VotedPoll, len(u.VotedPolls))
	for _, v := range u.VotedPolls {
		out[v.PollUUID] = v
	}
	return out
}

// LikedSet returns the liked poll uuids as a set.
func (u *CurrentUser) LikedSet() map[string]struct{} {
	out := make(map[string]struct{}, len(u.LikedPollUUIDs))
	for _, id := range u.LikedPollUUIDs {
		out[id] = struct{}{}
	}
	return out
}
