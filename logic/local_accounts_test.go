package logic_test

import (
	"fedi_core/dal"
	"fedi_core/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestInitIdentityForLocalUser(t *testing.T) {
	h := setupHarness(t)

	alice, err := h.fed.InitIdentityForLocalUser(1, "alice", true)
	require.NoError(t, err)
	require.NotNil(t, alice)
	assert.Equal(t, "https://site.example/@alice@site.example/", alice.ActorUri)
	assert.Equal(t, "https://site.example/@alice@site.example/inbox/", alice.InboxUri)
	assert.Equal(t, "https://site.example/inbox/", alice.SharedInboxUri)
	assert.Equal(t, "https://site.example/@alice/", alice.ProfileUri)
	assert.Equal(t, "pub-pem", alice.PublicKey)
	assert.Equal(t, "priv-pem", alice.PrivateKey)
	assert.True(t, alice.Local)
	assert.True(t, alice.Discoverable)

	again, err := h.fed.InitIdentityForLocalUser(1, "alice", true)
	require.NoError(t, err)
	assert.Equal(t, alice.Id, again.Id)

	byUser, err := h.fed.GetIdentityByLocalUser(1)
	require.NoError(t, err)
	assert.Equal(t, alice.Id, byUser.Id)

	userId, err := h.fed.GetLocalUserByIdentity(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, int64(1), userId)
}

func TestInitIdentityWithoutUsername(t *testing.T) {
	h := setupHarness(t)

	idn, err := h.fed.InitIdentityForLocalUser(1, "", true)
	assert.NoError(t, err)
	assert.Nil(t, idn)

	_, err = h.fed.GetIdentityByLocalUser(1)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLocalUserLookupsOfRemoteIdentity(t *testing.T) {
	h := setupHarness(t)
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	_, err := h.fed.GetLocalUserByIdentity(bob.Id)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	var precondition *shared.PreconditionError
	_, err = h.accounts.GenerateKeypair(bob.Id)
	assert.ErrorAs(t, err, &precondition)
}

func TestGenerateKeypairReplacesKeys(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")

	idn, err := h.accounts.GenerateKeypair(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, "https://site.example/@alice@site.example/#main-key", idn.PublicKeyId)

	stored, err := h.repo.GetIdentity(alice.Id)
	require.NoError(t, err)
	assert.Equal(t, "priv-pem", stored.PrivateKey)
}

func TestInitIdentityRefusesRemoteRowInLocalDomain(t *testing.T) {
	h := setupHarness(t)
	local, err := h.domains.GetLocalDomain()
	require.NoError(t, err)
	_, planted, err := h.repo.AddIdentityIfNotExist(&dal.Identity{
		ActorUri: "https://evil.example/users/mallory",
		Username: "root",
		Domain:   local.Domain,
		State:    dal.IdentityOutdated,
	})
	require.NoError(t, err)

	var precondition *shared.PreconditionError
	idn, err := h.fed.InitIdentityForLocalUser(7, "root", true)
	assert.ErrorAs(t, err, &precondition)
	assert.Nil(t, idn)

	stored, err := h.repo.GetIdentity(planted.Id)
	require.NoError(t, err)
	assert.Equal(t, "", stored.PrivateKey)
	assert.False(t, stored.Local)
	_, err = h.fed.GetIdentityByLocalUser(7)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
