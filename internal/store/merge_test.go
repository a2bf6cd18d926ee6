package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livepoll/pollstream/internal/events"
	"github.com/livepoll/pollstream/internal/models"
)

func option(uuid, name string, votes int) models.PollOption {
	return models.PollOption{UUID: uuid, OptionName: name, Votes: votes}
}

func fullPatch(p models.Poll) events.Patch {
	return events.PatchFromPoll(p)
}

func TestMergePoll_StructuralPayloadPreservesVotes(t *testing.T) {
	existing := models.Poll{
		UUID:       "p1",
		Title:      "Lunch?",
		CreatedAt:  time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		TotalVotes: 8,
		VersionID:  2,
		Options: []models.PollOption{
			option("a", "Pizza", 5),
			option("b", "Sushi", 3),
		},
	}
	// Structural broadcast: same options plus a new one, all votes zero,
	// no total. Prior tallies must survive.
	incoming := models.Poll{
		UUID:      "p1",
		Title:     "Lunch?",
		CreatedAt: existing.CreatedAt,
		VersionID: 3,
		Options: []models.PollOption{
			option("a", "Pizza", 0),
			option("b", "Sushi", 0),
			option("c", "Salad", 0),
		},
	}

	merged := mergePoll(existing, fullPatch(incoming))

	require.Len(t, merged.Options, 3)
	assert.Equal(t, 5, merged.Options[0].Votes)
	assert.Equal(t, 3, merged.Options[1].Votes)
	assert.Equal(t, 0, merged.Options[2].Votes)
	assert.Equal(t, 8, merged.TotalVotes)
	assert.Equal(t, int64(3), merged.VersionID)
}

func TestMergePoll_PayloadWithVoteDataWinsVerbatim(t *testing.T) {
	existing := models.Poll{
		UUID:      "p1",
		Title:     "Lunch?",
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Options:   []models.PollOption{option("a", "Pizza", 1), option("b", "Sushi", 0)},
	}
	incoming := existing.Clone()
	incoming.Options = []models.PollOption{option("a", "Pizza", 6), option("b", "Sushi", 4)}
	incoming.TotalVotes = 10

	merged := mergePoll(existing, fullPatch(incoming))

	assert.Equal(t, 6, merged.Options[0].Votes)
	assert.Equal(t, 4, merged.Options[1].Votes)
	assert.Equal(t, 10, merged.TotalVotes)
}

func TestMergePoll_PartialPayloadShallowMerges(t *testing.T) {
	existing := models.Poll{
		UUID:      "p1",
		Title:     "Old title",
		CreatedAt: time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
		Likes:     7,
		Options:   []models.PollOption{option("a", "Pizza", 5), option("b", "Sushi", 3)},
	}
	title := "New title"
	merged := mergePoll(existing, events.Patch{PollUUID: "p1", Title: &title})

	assert.Equal(t, "New title", merged.Title)
	assert.Equal(t, 7, merged.Likes)
	require.Len(t, merged.Options, 2)
	assert.Equal(t, 5, merged.Options[0].Votes)
}

func TestApplyOptionsChanged_NeverTrustsIncomingVotes(t *testing.T) {
	existing := models.Poll{
		UUID:       "p1",
		TotalVotes: 8,
		Options:    []models.PollOption{option("a", "Pizza", 5), option("b", "Sushi", 3)},
	}
	version := int64(4)
	patch := events.Patch{
		PollUUID:  "p1",
		VersionID: &version,
		Options: []models.PollOption{
			option("a", "Pizza", 99), // bogus wire votes must be ignored
			option("b", "Sushi", 99),
			option("c", "Salad", 99),
		},
	}

	merged := applyOptionsChanged(existing, patch)

	require.Len(t, merged.Options, 3)
	assert.Equal(t, 5, merged.Options[0].Votes)
	assert.Equal(t, 3, merged.Options[1].Votes)
	assert.Equal(t, 0, merged.Options[2].Votes)
	assert.Equal(t, 8, merged.TotalVotes, "local total preserved verbatim")
	assert.Equal(t, int64(4), merged.VersionID)
}

func TestApplySummary_RecomputesFromSnapshot(t *testing.T) {
	existing := models.Poll{
		UUID:    "p1",
		Options: []models.PollOption{option("a", "Pizza", 1), option("b", "Sushi", 1)},
	}
	summary := models.VoteSummary{
		TotalVotes:        10,
		OptionPercentages: map[string]int{"a": 70, "b": 30},
	}

	merged := applySummary(existing, summary)

	assert.Equal(t, 7, merged.Options[0].Votes)
	assert.Equal(t, 3, merged.Options[1].Votes)
	assert.Equal(t, 10, merged.TotalVotes)
}

func TestApplySummary_MissingOptionGetsZero(t *testing.T) {
	existing := models.Poll{
		UUID:    "p1",
		Options: []models.PollOption{option("a", "Pizza", 4), option("b", "Sushi", 4)},
	}
	summary := models.VoteSummary{
		TotalVotes:        5,
		OptionPercentages: map[string]int{"a": 100},
	}

	merged := applySummary(existing, summary)

	assert.Equal(t, 5, merged.Options[0].Votes)
	assert.Equal(t, 0, merged.Options[1].Votes)
}

func TestMergePoll_DoesNotAliasExisting(t *testing.T) {
	existing := models.Poll{
		UUID:    "p1",
		Title:   "T",
		Options: []models.PollOption{option("a", "Pizza", 5), option("b", "Sushi", 0)},
	}
	summary := models.VoteSummary{TotalVotes: 1, OptionPercentages: map[string]int{"a": 100}}
	merged := applySummary(existing, summary)

	merged.Options[0].Votes = 42
	assert.Equal(t, 5, existing.Options[0].Votes)
}
