package logic_test

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestInboxAppendKeepsPayloadVerbatim(t *testing.T) {
	h := setupHarness(t)

	payload := json.RawMessage(`{"type":"Follow",  "actor":"https://remote.example/users/bob"}`)
	id, err := h.inbox.Append(payload)
	require.NoError(t, err)

	msg, err := h.inbox.Get(id)
	require.NoError(t, err)
	assert.Equal(t, string(payload), string(msg.Message))
	assert.Equal(t, dal.InboxReceived, msg.State)

	_, err = h.inbox.Append(json.RawMessage(`{"type":`))
	assert.ErrorIs(t, err, shared.ErrProtocol)
	_, err = h.inbox.Get(id + 1000)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestInboxAppendInternal(t *testing.T) {
	h := setupHarness(t)

	id, err := h.inbox.AppendInternal(map[string]any{"action": "refresh", "identity": 7})
	require.NoError(t, err)

	msg, err := h.inbox.Get(id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"__internal__","object":{"action":"refresh","identity":7}}`, string(msg.Message))
}

func TestInboxStates(t *testing.T) {
	h := setupHarness(t)

	var ids []int64
	for _, kind := range []string{"Like", "Announce", "Undo"} {
		id, err := h.inbox.Append(json.RawMessage(`{"type":"` + kind + `"}`))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	batch, err := h.inbox.NextBatch(2)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.Equal(t, ids[0], batch[0].Id)
	assert.Equal(t, ids[1], batch[1].Id)

	require.NoError(t, h.inbox.MarkProcessed(ids[0]))
	require.NoError(t, h.inbox.MarkFailed(ids[1]))
	assert.ErrorIs(t, h.inbox.MarkProcessed(ids[2]+1000), shared.ErrNotFound)

	batch, err = h.inbox.NextBatch(0)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, ids[2], batch[0].Id)

	for state, want := range map[dal.InboxState]int{dal.InboxReceived: 1, dal.InboxProcessed: 1, dal.InboxFailed: 1} {
		count, err := h.inbox.Count(state)
		require.NoError(t, err)
		assert.Equal(t, want, count, state)
	}
}
