package logic_test

import (
	"fedi_core/dal"
	"fedi_core/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestToggleOnRevivesUndoneRow(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)
	post, err := h.posts.CreateLocal(alice.Id, "", "like me", nil)
	require.NoError(t, err)

	first, err := h.ledger.LikePost(post.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.InteractionNew, first.State)
	second, err := h.ledger.LikePost(post.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)

	stats, err := h.ledger.GetPostStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Likes)

	require.NoError(t, h.ledger.UnlikePost(post.Id, bob.Id))
	pi, err := h.ledger.GetUserInteraction(post.Id, bob.Id, dal.InteractionLike)
	require.NoError(t, err)
	assert.Equal(t, dal.InteractionUndone, pi.State)
	stats, err = h.ledger.GetPostStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Likes)

	revived, err := h.ledger.LikePost(post.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, first.Id, revived.Id)
	assert.Equal(t, dal.InteractionNew, revived.State)
}

func TestStatsFollowInteractions(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	carol := h.localIdentity(t, 2, "carol")
	bob := h.remoteIdentity(t, "bob", remoteDomain)
	post, err := h.posts.CreateLocal(alice.Id, "", "boost me", nil)
	require.NoError(t, err)

	_, err = h.ledger.BoostPost(post.Id, bob.Id)
	require.NoError(t, err)
	_, err = h.ledger.BoostPost(post.Id, carol.Id)
	require.NoError(t, err)
	_, err = h.ledger.LikePost(post.Id, carol.Id)
	require.NoError(t, err)
	require.NoError(t, h.ledger.UnboostPost(post.Id, bob.Id))
	// Undoing what never happened changes nothing
	require.NoError(t, h.ledger.UnlikePost(post.Id, bob.Id))

	stats, err := h.ledger.GetPostStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.PostStats{Likes: 1, Boosts: 1}, *stats)

	// Recounting from scratch lands on the stored value, every time
	recount, err := h.posts.CalculateStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, *stats, *recount)
	again, err := h.posts.CalculateStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, recount, again)
}

func TestInteractionTargetsMustExist(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	post, err := h.posts.CreateLocal(alice.Id, "", "anyone?", nil)
	require.NoError(t, err)

	_, err = h.ledger.LikePost(shared.GenerateId(shared.IdTypePost), alice.Id)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.ledger.LikePost(post.Id, shared.GenerateId(shared.IdTypeIdentity))
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.ledger.PostLikedBy(shared.GenerateId(shared.IdTypePost), alice.Id)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	liked, err := h.ledger.PostLikedBy(post.Id, alice.Id)
	require.NoError(t, err)
	assert.False(t, liked)
}
