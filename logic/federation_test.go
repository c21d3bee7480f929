package logic_test

import (
	"fedi_core/dal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestAliceAndBob(t *testing.T) {
	h := setupHarness(t)

	alice, err := h.fed.InitIdentityForLocalUser(1, "alice", true)
	require.NoError(t, err)
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	post, err := h.fed.Post(alice.Id, "", "hello @bob #greet", dal.VisibilityPublic, nil, 0, nil)
	require.NoError(t, err)

	mentions, err := h.posts.GetMentionIds(post.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.Id}, mentions)
	assert.Equal(t, []string{"greet"}, post.Hashtags)
	assert.Equal(t, dal.PostStats{Likes: 0, Boosts: 0, Replies: 0}, post.Stats)

	require.NoError(t, h.fed.LikePost(post.Id, bob.Id))
	stats, err := h.fed.GetPostStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Likes)
	liked, err := h.fed.PostLikedBy(post.Id, bob.Id)
	require.NoError(t, err)
	assert.True(t, liked)

	require.NoError(t, h.fed.UnlikePost(post.Id, bob.Id))
	stats, err = h.fed.GetPostStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Likes)
	liked, err = h.fed.PostLikedBy(post.Id, bob.Id)
	require.NoError(t, err)
	assert.False(t, liked)

	require.NoError(t, h.fed.BoostPost(post.Id, bob.Id))
	require.NoError(t, h.fed.UnboostPost(post.Id, bob.Id))
	stats, err = h.fed.GetPostStats(post.Id)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Boosts)
}

func TestBareMentionBinding(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	remoteBob := h.remoteIdentity(t, "bob", remoteDomain)
	h.remoteIdentity(t, "carol", remoteDomain)
	h.remoteIdentity(t, "carol", "other.example")

	mentionsOf := func(content string) []int64 {
		post, err := h.fed.Post(alice.Id, "", content, dal.VisibilityPublic, nil, 0, nil)
		require.NoError(t, err)
		ids, err := h.posts.GetMentionIds(post.Id)
		require.NoError(t, err)
		return ids
	}

	// The only bob we know
	assert.Equal(t, []int64{remoteBob.Id}, mentionsOf("hi @bob"))
	// Two carols: ambiguous, dropped
	assert.Empty(t, mentionsOf("hi @carol"))

	// A bob on the author's own domain wins
	localBob := h.localIdentity(t, 2, "bob")
	assert.Equal(t, []int64{localBob.Id}, mentionsOf("hi @bob"))
}

func TestFollowersOnlyPostVisibility(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	carol := h.localIdentity(t, 2, "carol")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	post, err := h.fed.Post(alice.Id, "", "friends only", dal.VisibilityFollowers, nil, 0, nil)
	require.NoError(t, err)

	visibleTo := func(viewerId int64) []*dal.Post {
		posts, err := h.posts.ListPosts(&dal.PostFilter{Scope: dal.ScopeVisibleTo, ViewerId: viewerId, NotHidden: true})
		require.NoError(t, err)
		return posts
	}
	assert.Len(t, visibleTo(alice.Id), 1)
	assert.Empty(t, visibleTo(carol.Id))

	require.NoError(t, h.fed.Follow(carol.Id, alice.Id))
	assert.Empty(t, visibleTo(carol.Id), "a follow request is not enough")
	require.NoError(t, h.fed.AcceptFollowRequest(carol.Id, alice.Id))
	require.Len(t, visibleTo(carol.Id), 1)
	assert.Equal(t, post.Id, visibleTo(carol.Id)[0].Id)

	// Blocking the follower cuts them off
	require.NoError(t, h.fed.Block(alice.Id, carol.Id))
	assert.Empty(t, visibleTo(carol.Id))

	assert.Empty(t, visibleTo(bob.Id))
}
