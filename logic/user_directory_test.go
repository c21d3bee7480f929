package logic_test

import (
	"fedi_core/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestGetWebfinger(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")

	for _, resource := range []string{"acct:alice@site.example", "ALICE@Site.Example"} {
		resp, err := h.udir.GetWebfinger(resource)
		require.NoError(t, err, resource)
		assert.Equal(t, "acct:alice@site.example", resp.Subject)
		assert.Equal(t, []string{alice.ProfileUri, alice.ActorUri}, resp.Aliases)
		require.Len(t, resp.Links, 2)
		assert.Equal(t, "self", resp.Links[1].Rel)
		assert.Equal(t, "application/activity+json", resp.Links[1].Type)
		assert.Equal(t, alice.ActorUri, resp.Links[1].Href)
	}
}

func TestGetWebfingerUnknown(t *testing.T) {
	h := setupHarness(t)
	h.localIdentity(t, 1, "alice")
	h.remoteIdentity(t, "bob", remoteDomain)

	_, err := h.udir.GetWebfinger("acct:nobody@site.example")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.udir.GetWebfinger("acct:bob@remote.example")
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.udir.GetWebfinger("acct:alice")
	assert.ErrorIs(t, err, shared.ErrInvalidHandle)
}

func TestGetUserInfo(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")

	info, err := h.udir.GetUserInfo("alice", siteDomain)
	require.NoError(t, err)
	assert.Equal(t, alice.ActorUri, info.Id)
	assert.Equal(t, "Person", info.Type)
	assert.Equal(t, "alice", info.PreferredUserName)
	assert.Equal(t, alice.InboxUri, info.Inbox)
	assert.Equal(t, "https://site.example/inbox/", info.Endpoints.SharedInbox)
	assert.Equal(t, alice.ActorUri+"#main-key", info.PublicKey.Id)
	assert.Equal(t, alice.ActorUri, info.PublicKey.Owner)
	assert.Equal(t, "pub-pem", info.PublicKey.PublicKeyPem)
	assert.Equal(t, alice.ProfileUri, info.Url)

	_, err = h.udir.GetUserInfo("bob", remoteDomain)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
