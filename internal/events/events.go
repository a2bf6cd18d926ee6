// Package events parses the server's broadcast envelopes into typed events.
// All validation happens here, at the wire boundary; the store only ever
// sees well-formed payloads.
package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/livepoll/pollstream/internal/models"
)

// Envelope is the wire framing for every broadcast message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event types as the server names them.
const (
	TypePollCreated        = "poll_created"
	TypePollDeleted        = "poll_deleted"
	TypePollUpdated        = "poll_updated"
	TypePollOptionsAdded   = "poll_options_added"
	TypePollOptionsDeleted = "poll_options_deleted"
	TypePollVoted          = "poll_voted"
	TypeVoteCast           = "vote_cast"
	TypePollSummaryUpdated = "poll_summary_updated"
	TypePollLiked          = "poll_liked"
	TypePollUnliked        = "poll_unliked"
	TypeConnected          = "connected"
	TypePong               = "pong"
)

var (
	// ErrUnknownEvent marks envelope types this client does not recognize.
	// Callers log and drop; new server event kinds must not break old clients.
	ErrUnknownEvent = errors.New("unknown event type")

	errNoData = errors.New("envelope has no data")
)

// Event is one parsed broadcast. The concrete type carries the payload.
type Event interface {
	event()
}

// PollCreated announces a new poll.
type PollCreated struct {
	Poll models.Poll
}

// PollDeleted announces a poll removal.
type PollDeleted struct {
	PollUUID string
}

// PollUpdated carries a full or partial poll update.
type PollUpdated struct {
	Patch Patch
}

// PollOptionsChanged carries the poll's option set after options were added
// or removed. Added reports which direction the set changed.
type PollOptionsChanged struct {
	Patch Patch
	Added bool
}

// VoteRecorded carries a full vote-distribution snapshot for one poll.
type VoteRecorded struct {
	PollUUID   string
	OptionUUID string
	Summary    models.VoteSummary
}

// LikeChanged reports a like or unlike. Likes is the server's absolute count
// when the payload carries one; nil means the count must be adjusted locally.
type LikeChanged struct {
	PollUUID string
	Liked    bool
	Likes    *int
}

// Connected and Pong are control events with no state change.
type Connected struct{}

// Pong acknowledges a keepalive ping.
type Pong struct{}

func (PollCreated) event()        {}
func (PollDeleted) event()        {}
func (PollUpdated) event()        {}
func (PollOptionsChanged) event() {}
func (VoteRecorded) event()       {}
func (LikeChanged) event()        {}
func (Connected) event()          {}
func (Pong) event()               {}

// Patch is a poll payload with field presence preserved: nil pointer or nil
// slice means the field was absent on the wire. The merge policy dispatches
// on which fields are set.
type Patch struct {
	PollUUID    string
	Title       *string
	CreatedAt   *time.Time
	Likes       *int
	TotalVotes  *int
	VersionID   *int64
	CreatorUUID *string
	Options     []models.PollOption
}

// Full reports whether the patch carries a complete structural payload:
// title, creation timestamp and an option list.
func (p Patch) Full() bool {
	return p.Title != nil && p.CreatedAt != nil && p.Options != nil
}

// HasVoteEvidence reports whether the patch carries any vote data: a non-zero
// option vote or a positive total. Structural events without evidence must
// not zero out local tallies.
func (p Patch) HasVoteEvidence() bool {
	for _, o := range p.Options {
		if o.Votes > 0 {
			return true
		}
	}
	return p.TotalVotes != nil && *p.TotalVotes > 0
}

// PatchFromPoll builds a full patch from a server poll snapshot, used to
// route mutation responses through the same merge path as broadcasts.
func PatchFromPoll(p models.Poll) Patch {
	title := p.Title
	createdAt := p.CreatedAt
	likes := p.Likes
	version := p.VersionID
	patch := Patch{
		PollUUID:  p.UUID,
		Title:     &title,
		CreatedAt: &createdAt,
		Likes:     &likes,
		VersionID: &version,
		Options:   p.Options,
	}
	if p.TotalVotes > 0 {
		total := p.TotalVotes
		patch.TotalVotes = &total
	}
	if p.CreatorUUID != "" {
		creator := p.CreatorUUID
		patch.CreatorUUID = &creator
	}
	return patch
}

// pollPatchWire mirrors the poll payload with pointers so absent fields stay
// distinguishable from zero values. Vote and like payloads address the poll
// as poll_uuid; full poll payloads use uuid.
type pollPatchWire struct {
	UUID        string              `json:"uuid"`
	PollUUID    string              `json:"poll_uuid"`
	Title       *string             `json:"title"`
	CreatedAt   *time.Time          `json:"created_at"`
	Likes       *int                `json:"likes"`
	TotalVotes  *int                `json:"total_votes"`
	VersionID   *int64              `json:"version_id"`
	CreatorUUID *string             `json:"created_by_uuid"`
	Options     []models.PollOption `json:"options"`
}

func (w pollPatchWire) pollUUID() string {
	if w.PollUUID != "" {
		return w.PollUUID
	}
	return w.UUID
}

type voteWire struct {
	UUID       string             `json:"uuid"`
	PollUUID   string             `json:"poll_uuid"`
	OptionUUID string             `json:"option_uuid"`
	Summary    models.VoteSummary `json:"summary"`
}

type likeWire struct {
	UUID     string `json:"uuid"`
	PollUUID string `json:"poll_uuid"`
	Likes    *int   `json:"likes"`
	IsLiked  bool   `json:"is_liked"`
}

// Parse turns a raw websocket frame into a typed event.
func Parse(raw []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	return ParseEnvelope(env)
}

// ParseEnvelope dispatches a decoded envelope into a typed event.
func ParseEnvelope(env Envelope) (Event, error) {
	switch env.Type {
	case TypeConnected:
		return Connected{}, nil
	case TypePong:
		return Pong{}, nil
	}

	if len(env.Data) == 0 {
		return nil, fmt.Errorf("%s: %w", env.Type, errNoData)
	}

	switch env.Type {
	case TypePollCreated:
		var p models.Poll
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		if err := uuid.Validate(p.UUID); err != nil {
			return nil, fmt.Errorf("%s: bad poll uuid %q: %w", env.Type, p.UUID, err)
		}
		if len(p.Options) < 2 {
			return nil, fmt.Errorf("%s: poll %s has %d options, need at least 2", env.Type, p.UUID, len(p.Options))
		}
		return PollCreated{Poll: p}, nil

	case TypePollDeleted:
		var w pollPatchWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		id := w.pollUUID()
		if err := uuid.Validate(id); err != nil {
			return nil, fmt.Errorf("%s: bad poll uuid %q: %w", env.Type, id, err)
		}
		return PollDeleted{PollUUID: id}, nil

	case TypePollUpdated:
		patch, err := parsePatch(env)
		if err != nil {
			return nil, err
		}
		return PollUpdated{Patch: patch}, nil

	case TypePollOptionsAdded, TypePollOptionsDeleted:
		patch, err := parsePatch(env)
		if err != nil {
			return nil, err
		}
		if patch.Options == nil {
			return nil, fmt.Errorf("%s: payload carries no option list", env.Type)
		}
		return PollOptionsChanged{Patch: patch, Added: env.Type == TypePollOptionsAdded}, nil

	case TypePollVoted, TypeVoteCast, TypePollSummaryUpdated:
		var w voteWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		id := w.PollUUID
		if id == "" {
			id = w.UUID
		}
		if err := uuid.Validate(id); err != nil {
			return nil, fmt.Errorf("%s: bad poll uuid %q: %w", env.Type, id, err)
		}
		if w.Summary.OptionPercentages == nil {
			return nil, fmt.Errorf("%s: payload carries no summary", env.Type)
		}
		return VoteRecorded{PollUUID: id, OptionUUID: w.OptionUUID, Summary: w.Summary}, nil

	case TypePollLiked, TypePollUnliked:
		var w likeWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
		id := w.PollUUID
		if id == "" {
			id = w.UUID
		}
		if err := uuid.Validate(id); err != nil {
			return nil, fmt.Errorf("%s: bad poll uuid %q: %w", env.Type, id, err)
		}
		return LikeChanged{PollUUID: id, Liked: env.Type == TypePollLiked, Likes: w.Likes}, nil

	default:
		return nil, fmt.Errorf("%q: %w", env.Type, ErrUnknownEvent)
	}
}

func parsePatch(env Envelope) (Patch, error) {
	var w pollPatchWire
	if err := json.Unmarshal(env.Data, &w); err != nil {
		return Patch{}, fmt.Errorf("decode %s: %w", env.Type, err)
	}
	id := w.pollUUID()
	if err := uuid.Validate(id); err != nil {
		return Patch{}, fmt.Errorf("%s: bad poll uuid %q: %w", env.Type, id, err)
	}
	return Patch{
		PollUUID:    id,
		Title:       w.Title,
		CreatedAt:   w.CreatedAt,
		Likes:       w.Likes,
		TotalVotes:  w.TotalVotes,
		VersionID:   w.VersionID,
		CreatorUUID: w.CreatorUUID,
		Options:     w.Options,
	}, nil
}
