package store

import (
	"github.com/livepoll/pollstream/internal/events"
	"github.com/livepoll/pollstream/internal/models"
)

// mergePoll folds an incoming poll payload onto the existing record.
//
// A full payload (title, creation timestamp and an option list) is
// authoritative for structure. If it carries no vote evidence the existing
// per-option tallies are preserved, matched by option uuid: structural
// broadcasts do not carry vote data and must not zero out a live tally.
// A partial payload is overlaid field by field, only where set.
func mergePoll(existing models.Poll, patch events.Patch) models.Poll {
	out := existing.Clone()

	if patch.Full() {
		out.Title = *patch.Title
		out.CreatedAt = *patch.CreatedAt
		if patch.Likes != nil {
			out.Likes = *patch.Likes
		}
		if patch.VersionID != nil {
			out.VersionID = *patch.VersionID
		}
		if patch.CreatorUUID != nil {
			out.CreatorUUID = *patch.CreatorUUID
		}

		if patch.HasVoteEvidence() {
			out.Options = cloneOptions(patch.Options)
			if patch.TotalVotes != nil {
				out.TotalVotes = *patch.TotalVotes
			}
			return out
		}

		existingVotes := optionVotes(existing.Options)
		out.Options = cloneOptions(patch.Options)
		for i := range out.Options {
			if votes, ok := existingVotes[out.Options[i].UUID]; ok {
				out.Options[i].Votes = votes
			}
		}
		if patch.TotalVotes != nil {
			out.TotalVotes = *patch.TotalVotes
		}
		return out
	}

	// Partial payload: shallow merge of the set fields.
	if patch.Title != nil {
		out.Title = *patch.Title
	}
	if patch.CreatedAt != nil {
		out.CreatedAt = *patch.CreatedAt
	}
	if patch.Likes != nil {
		out.Likes = *patch.Likes
	}
	if patch.TotalVotes != nil {
		out.TotalVotes = *patch.TotalVotes
	}
	if patch.VersionID != nil {
		out.VersionID = *patch.VersionID
	}
	if patch.CreatorUUID != nil {
		out.CreatorUUID = *patch.CreatorUUID
	}
	if patch.Options != nil {
		out.Options = cloneOptions(patch.Options)
	}
	return out
}

// applyOptionsChanged replaces the option list after an add/remove. The
// incoming list wins for structure, but option-set events never carry
// authoritative vote data: per-option votes come from local state (zero for
// options we have never seen) and the local total is kept verbatim.
func applyOptionsChanged(existing models.Poll, patch events.Patch) models.Poll {
	out := existing.Clone()

	existingVotes := optionVotes(existing.Options)
	out.Options = cloneOptions(patch.Options)
	for i := range out.Options {
		out.Options[i].Votes = existingVotes[out.Options[i].UUID]
	}

	if patch.Title != nil {
		out.Title = *patch.Title
	}
	if patch.VersionID != nil {
		out.VersionID = *patch.VersionID
	}
	return out
}

// applySummary recomputes every option's tally from a vote-distribution
// snapshot. Counts are derived, never incremented, so a redelivered summary
// is harmless.
func applySummary(existing models.Poll, summary models.VoteSummary) models.Poll {
	out := existing.Clone()
	out.TotalVotes = summary.TotalVotes
	for i := range out.Options {
		pct := summary.OptionPercentages[out.Options[i].UUID]
		out.Options[i].Votes = roundShare(summary.TotalVotes, pct)
	}
	return out
}

func roundShare(total, pct int) int {
	return int(float64(total)*float64(pct)/100 + 0.5)
}

func optionVotes(options []models.PollOption) map[string]int {
	out := make(map[string]int, len(options))
	for _, o := range options {
		out[o.UUID] = o.Votes
	}
	return out
}

func cloneOptions(options []models.PollOption) []models.PollOption {
	out := make([]models.PollOption, len(options))
	copy(out, options)
	return out
}
