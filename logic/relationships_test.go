package logic_test

import (
	"fedi_core/dal"
	"fedi_core/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestFollowIsIdempotent(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	first, err := h.rels.Follow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowUnrequested, first.State)
	assert.True(t, first.Boosts)
	assert.Equal(t, shared.FollowUri(alice.ActorUri, first.Id), first.Uri)

	second, err := h.rels.Follow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)
}

func TestAcceptTwiceStaysAccepted(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	_, err := h.rels.Follow(bob.Id, alice.Id)
	require.NoError(t, err)
	_, err = h.rels.UpdateFollowState(bob.Id, alice.Id, nil, dal.FollowPendingApproval)
	require.NoError(t, err)

	requested, err := h.fed.GetRequestedFollowerIds(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.Id}, requested)
	pending, err := h.fed.GetFollowingRequestIds(bob.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.Id}, pending)

	for i := 0; i < 2; i++ {
		f, err := h.rels.AcceptFollowRequest(bob.Id, alice.Id)
		require.NoError(t, err)
		assert.Equal(t, dal.FollowAccepted, f.State)
	}

	followers, err := h.fed.GetFollowerIds(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.Id}, followers)
	following, err := h.fed.GetFollowingIds(bob.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.Id}, following)
}

func TestUpdateFollowStateRespectsFromStates(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	f, err := h.rels.UpdateFollowState(alice.Id, bob.Id, nil, dal.FollowAccepted)
	require.NoError(t, err)
	assert.Nil(t, f, "no follow, no transition")

	_, err = h.rels.Follow(alice.Id, bob.Id)
	require.NoError(t, err)
	f, err = h.rels.UpdateFollowState(alice.Id, bob.Id, []dal.FollowState{dal.FollowPendingApproval}, dal.FollowAccepted)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowUnrequested, f.State)

	f, err = h.rels.UpdateFollowState(alice.Id, bob.Id, []dal.FollowState{dal.FollowUnrequested}, dal.FollowAccepted)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowAccepted, f.State)
}

func TestRefollowResetsLapsedFollow(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	first, err := h.rels.Follow(alice.Id, bob.Id)
	require.NoError(t, err)
	require.NoError(t, h.fed.Unfollow(alice.Id, bob.Id))
	f, err := h.repo.GetFollow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowUndone, f.State)

	again, err := h.rels.Follow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, first.Id, again.Id)
	assert.Equal(t, dal.FollowUnrequested, again.State)
}

func TestRejectFollowRequest(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	require.NoError(t, h.fed.Follow(bob.Id, alice.Id))
	require.NoError(t, h.fed.RejectFollowRequest(bob.Id, alice.Id))
	require.NoError(t, h.fed.RejectFollowRequest(bob.Id, alice.Id))

	f, err := h.repo.GetFollow(bob.Id, alice.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowRejecting, f.State)
}

func TestSelfRelationIsRefused(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")

	var precondition *shared.PreconditionError
	assert.ErrorAs(t, h.fed.Follow(alice.Id, alice.Id), &precondition)
	assert.ErrorAs(t, h.fed.Block(alice.Id, alice.Id), &precondition)
	assert.ErrorIs(t, h.fed.Follow(alice.Id, shared.GenerateId(shared.IdTypeIdentity)), shared.ErrNotFound)
}

func TestBlockTearsDownFollows(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	require.NoError(t, h.fed.Follow(alice.Id, bob.Id))
	_, err := h.rels.UpdateFollowState(alice.Id, bob.Id, nil, dal.FollowAccepted)
	require.NoError(t, err)
	require.NoError(t, h.fed.Follow(bob.Id, alice.Id))
	require.NoError(t, h.fed.AcceptFollowRequest(bob.Id, alice.Id))

	block, err := h.rels.Block(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.BlockNew, block.State)
	assert.Equal(t, shared.BlockUri(alice.ActorUri, block.Id), block.Uri)

	out, err := h.repo.GetFollow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowUndone, out.State)
	in, err := h.repo.GetFollow(bob.Id, alice.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowRejecting, in.State)

	following, err := h.fed.GetFollowingIds(alice.Id)
	require.NoError(t, err)
	assert.Empty(t, following)

	blocking, err := h.fed.GetBlockingIds(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.Id}, blocking)
	rejecting, err := h.fed.GetRejectingIds(bob.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.Id}, rejecting)

	// Blocking again keeps the single row
	again, err := h.rels.Block(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, block.Id, again.Id)

	require.NoError(t, h.fed.Unblock(alice.Id, bob.Id))
	blocking, err = h.fed.GetBlockingIds(alice.Id)
	require.NoError(t, err)
	assert.Empty(t, blocking)
}

func TestMuteLeavesFollowsAlone(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	require.NoError(t, h.fed.Follow(alice.Id, bob.Id))
	_, err := h.rels.UpdateFollowState(alice.Id, bob.Id, nil, dal.FollowAccepted)
	require.NoError(t, err)

	mute, err := h.rels.Mute(alice.Id, bob.Id, time.Hour, true)
	require.NoError(t, err)
	assert.True(t, mute.Mute)
	assert.True(t, mute.IncludeNotifications)
	require.NotNil(t, mute.Expires)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *mute.Expires, time.Minute)

	f, err := h.repo.GetFollow(alice.Id, bob.Id)
	require.NoError(t, err)
	assert.Equal(t, dal.FollowAccepted, f.State)

	muting, err := h.fed.GetMutingIds(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.Id}, muting)
	rejecting, err := h.fed.GetRejectingIds(alice.Id)
	require.NoError(t, err)
	assert.Empty(t, rejecting)

	require.NoError(t, h.fed.Unmute(alice.Id, bob.Id))
	muting, err = h.fed.GetMutingIds(alice.Id)
	require.NoError(t, err)
	assert.Empty(t, muting)
}

func TestRemoteIdentityCannotBlock(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	var precondition *shared.PreconditionError
	assert.ErrorAs(t, h.fed.Block(bob.Id, alice.Id), &precondition)
	assert.ErrorAs(t, h.fed.Mute(bob.Id, alice.Id, 0, false), &precondition)
}
