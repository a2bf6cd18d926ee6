package events

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_PollCreated(t *testing.T) {
	pollID := uuid.NewString()
	o1 := uuid.NewString()
	o2 := uuid.NewString()
	raw := fmt.Sprintf(`{"type":"poll_created","data":{
		"uuid":%q,"title":"Lunch?","created_at":"2026-08-01T10:00:00Z","likes":0,"version_id":1,
		"options":[{"uuid":%q,"option_name":"Pizza","votes":0},{"uuid":%q,"option_name":"Sushi","votes":0}]
	}}`, pollID, o1, o2)

	evt, err := Parse([]byte(raw))
	require.NoError(t, err)

	created, ok := evt.(PollCreated)
	require.True(t, ok)
	assert.Equal(t, pollID, created.Poll.UUID)
	assert.Len(t, created.Poll.Options, 2)
	assert.Equal(t, "Lunch?", created.Poll.Title)
}

func TestParse_PollCreatedRejectsSingleOption(t *testing.T) {
	raw := fmt.Sprintf(`{"type":"poll_created","data":{
		"uuid":%q,"title":"Degenerate","created_at":"2026-08-01T10:00:00Z",
		"options":[{"uuid":%q,"option_name":"Only"}]
	}}`, uuid.NewString(), uuid.NewString())

	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_PollDeletedAcceptsEitherUUIDKey(t *testing.T) {
	pollID := uuid.NewString()
	for _, key := range []string{"uuid", "poll_uuid"} {
		raw := fmt.Sprintf(`{"type":"poll_deleted","data":{%q:%q}}`, key, pollID)
		evt, err := Parse([]byte(raw))
		require.NoError(t, err, key)
		deleted, ok := evt.(PollDeleted)
		require.True(t, ok)
		assert.Equal(t, pollID, deleted.PollUUID)
	}
}

func TestParse_VoteRecorded(t *testing.T) {
	pollID := uuid.NewString()
	optID := uuid.NewString()
	raw := fmt.Sprintf(`{"type":"poll_voted","data":{
		"poll_uuid":%q,"option_uuid":%q,
		"summary":{"total_votes":10,"option_percentages":{%q:70}}
	}}`, pollID, optID, optID)

	evt, err := Parse([]byte(raw))
	require.NoError(t, err)

	vote, ok := evt.(VoteRecorded)
	require.True(t, ok)
	assert.Equal(t, pollID, vote.PollUUID)
	assert.Equal(t, 10, vote.Summary.TotalVotes)
	assert.Equal(t, 70, vote.Summary.OptionPercentages[optID])
}

func TestParse_VoteAliases(t *testing.T) {
	pollID := uuid.NewString()
	for _, typ := range []string{"poll_voted", "vote_cast", "poll_summary_updated"} {
		raw := fmt.Sprintf(`{"type":%q,"data":{"poll_uuid":%q,"summary":{"total_votes":1,"option_percentages":{}}}}`, typ, pollID)
		evt, err := Parse([]byte(raw))
		require.NoError(t, err, typ)
		_, ok := evt.(VoteRecorded)
		assert.True(t, ok, typ)
	}
}

func TestParse_VoteWithoutSummaryRejected(t *testing.T) {
	raw := fmt.Sprintf(`{"type":"poll_voted","data":{"poll_uuid":%q}}`, uuid.NewString())
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_LikeCarriesOptionalCount(t *testing.T) {
	pollID := uuid.NewString()

	raw := fmt.Sprintf(`{"type":"poll_liked","data":{"poll_uuid":%q,"likes":4}}`, pollID)
	evt, err := Parse([]byte(raw))
	require.NoError(t, err)
	like := evt.(LikeChanged)
	assert.True(t, like.Liked)
	require.NotNil(t, like.Likes)
	assert.Equal(t, 4, *like.Likes)

	raw = fmt.Sprintf(`{"type":"poll_unliked","data":{"poll_uuid":%q}}`, pollID)
	evt, err = Parse([]byte(raw))
	require.NoError(t, err)
	like = evt.(LikeChanged)
	assert.False(t, like.Liked)
	assert.Nil(t, like.Likes)
}

func TestParse_OptionsChangedRequiresOptionList(t *testing.T) {
	raw := fmt.Sprintf(`{"type":"poll_options_added","data":{"uuid":%q,"version_id":3}}`, uuid.NewString())
	_, err := Parse([]byte(raw))
	require.Error(t, err)
}

func TestParse_OptionsChangedDirection(t *testing.T) {
	pollID := uuid.NewString()
	data := fmt.Sprintf(`{"uuid":%q,"version_id":3,"options":[{"uuid":%q,"option_name":"A"},{"uuid":%q,"option_name":"B"}]}`,
		pollID, uuid.NewString(), uuid.NewString())

	evt, err := Parse([]byte(`{"type":"poll_options_added","data":` + data + `}`))
	require.NoError(t, err)
	assert.True(t, evt.(PollOptionsChanged).Added)

	evt, err = Parse([]byte(`{"type":"poll_options_deleted","data":` + data + `}`))
	require.NoError(t, err)
	assert.False(t, evt.(PollOptionsChanged).Added)
}

func TestParse_ControlEvents(t *testing.T) {
	evt, err := Parse([]byte(`{"type":"connected"}`))
	require.NoError(t, err)
	assert.IsType(t, Connected{}, evt)

	evt, err = Parse([]byte(`{"type":"pong","data":{}}`))
	require.NoError(t, err)
	assert.IsType(t, Pong{}, evt)
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"poll_archived","data":{"uuid":"x"}}`))
	require.ErrorIs(t, err, ErrUnknownEvent)
}

func TestParse_MalformedJSON(t *testing.T) {
	_, err := Parse([]byte(`{"type":"poll_created","data":`))
	require.Error(t, err)
}

func TestPatch_FullAndEvidence(t *testing.T) {
	pollID := uuid.NewString()
	optID := uuid.NewString()

	raw := fmt.Sprintf(`{"uuid":%q,"title":"T","created_at":"2026-08-01T10:00:00Z",
		"options":[{"uuid":%q,"option_name":"A","votes":0},{"uuid":%q,"option_name":"B","votes":0}]}`,
		pollID, optID, uuid.NewString())
	evt, err := ParseEnvelope(Envelope{Type: TypePollUpdated, Data: json.RawMessage(raw)})
	require.NoError(t, err)
	patch := evt.(PollUpdated).Patch
	assert.True(t, patch.Full())
	assert.False(t, patch.HasVoteEvidence())

	raw = fmt.Sprintf(`{"uuid":%q,"title":"T"}`, pollID)
	evt, err = ParseEnvelope(Envelope{Type: TypePollUpdated, Data: json.RawMessage(raw)})
	require.NoError(t, err)
	patch = evt.(PollUpdated).Patch
	assert.False(t, patch.Full())
	require.NotNil(t, patch.Title)
	assert.Nil(t, patch.CreatedAt)
	assert.Nil(t, patch.Options)
}
