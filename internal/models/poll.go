package models

import "time"

// Poll is a question with a mutable option set, as the server emits it.
// UUID is the public identifier used on the wire; ID is the server's row id.
type Poll struct {
	ID          string       `json:"id"`
	UUID        string       `json:"uuid"`
	Title       string       `json:"title"`
	CreatedAt   time.Time    `json:"created_at"`
	Likes       int          `json:"likes"`
	Options     []PollOption `json:"options"`
	TotalVotes  int          `json:"total_votes,omitempty"`
	VersionID   int64        `json:"version_id"`
	CreatorUUID string       `json:"created_by_uuid,omitempty"`
}

// PollOption is one selectable choice, versioned independently of its poll.
type PollOption struct {
	ID         string    `json:"id"`
	UUID       string    `json:"uuid"`
	PollUUID   string    `json:"poll_id"`
	OptionName string    `json:"option_name"`
	Votes      int       `json:"votes"`
	VersionID  int64     `json:"version_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// VoteSummary is the server's per-poll vote distribution: total votes plus
// a percentage per option uuid. It is always a full snapshot, never a delta.
type VoteSummary struct {
	TotalVotes        int            `json:"total_votes"`
	OptionPercentages map[string]int `json:"option_percentages"`
}

// Option returns the option with the given uuid, or nil if absent.
func (p *Poll) Option(optionUUID string) *PollOption {
	for i := range p.Options {
		if p.Options[i].UUID == optionUUID {
			return &p.Options[i]
		}
	}
	return nil
}

// Clone returns a deep copy so callers can hold a snapshot without aliasing
// the store's backing slices.
func (p Poll) Clone() Poll {
	out := p
	out.Options = make([]PollOption, len(p.Options))
	copy(out.Options, p.Options)
	return out
}

// TotalFromOptions sums per-option votes. The server's total_votes field is
// authoritative when present; this is the fallback for display.
func TotalFromOptions(options []PollOption) int {
	total := 0
	for _, o := range options {
		total += o.Votes
	}
	return total
}

// Percentage returns the rounded share of total for a vote count.
func Percentage(votes, total int) int {
	if total == 0 {
		return 0
	}
	return int(float64(votes)/float64(total)*100 + 0.5)
}
