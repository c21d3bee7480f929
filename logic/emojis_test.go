package logic_test

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/logic"
	"fedi_core/shared"
	"fedi_core/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"testing"
	"time"
)

func TestEmojisServedFromCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := setupHarness(t)
	mockCache := mocks.NewMockICache(ctrl)
	emojis := logic.NewEmojis(h.mockLogger, h.repo, mockCache)

	// Only in the cache: a hit never reaches the database
	cachedVal, err := json.Marshal(&dal.Emoji{Id: 42, Shortcode: "blobcat", Local: true})
	require.NoError(t, err)
	mockCache.EXPECT().Get(gomock.Any()).Return(cachedVal, true)

	res, err := emojis.FromShortcodes(h.repo, []string{"blobcat"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, int64(42), res[0].Id)

	// A miss is read from the database and stored
	_, parrot, err := h.repo.AddEmojiIfNotExist(&dal.Emoji{Shortcode: "partyparrot", Local: true})
	require.NoError(t, err)
	mockCache.EXPECT().Get(gomock.Any()).Return(nil, false).Times(2)
	mockCache.EXPECT().Set(gomock.Any(), gomock.Any()).Times(1)

	res, err = emojis.FromShortcodes(h.repo, []string{"partyparrot", "unknown"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, parrot.Id, res[0].Id)
}

func TestEmojisSecondLookupHitsMemoryCache(t *testing.T) {
	h := setupHarness(t)
	cache := logic.NewMemoryCache(10, time.Minute)
	emojis := logic.NewEmojis(h.mockLogger, h.repo, cache)
	_, parrot, err := h.repo.AddEmojiIfNotExist(&dal.Emoji{Shortcode: "partyparrot", Local: true})
	require.NoError(t, err)

	first, err := emojis.FromShortcodes(h.repo, []string{"partyparrot"})
	require.NoError(t, err)
	require.Len(t, first, 1)

	// An empty repo proves the second answer came from the cache
	empty := setupHarness(t)
	second, err := emojis.FromShortcodes(empty.repo, []string{"partyparrot"})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, parrot.Id, second[0].Id)
}

func TestGetEmojiThroughFacade(t *testing.T) {
	h := setupHarness(t)
	_, err := h.domains.GetOrCreateRemote(remoteDomain)
	require.NoError(t, err)
	_, remote, err := h.repo.AddEmojiIfNotExist(&dal.Emoji{Shortcode: "wave", Domain: remoteDomain})
	require.NoError(t, err)

	found, err := h.fed.GetEmoji("wave", "Remote.Example")
	require.NoError(t, err)
	assert.Equal(t, remote.Id, found.Id)

	_, err = h.fed.GetEmoji("wave", "")
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
