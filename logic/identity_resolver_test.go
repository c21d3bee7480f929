package logic_test

import (
	"errors"
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/logic"
	"fedi_core/shared"
	"fedi_core/test/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"testing"
	"time"
)

const robertUri = "https://remote.example/users/robert"

func TestResolveUnknownHandleWithoutFetch(t *testing.T) {
	h := setupHarness(t)

	_, err := h.resolver.Resolve("bob@remote.example", false, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveRejectsMalformedHandles(t *testing.T) {
	h := setupHarness(t)

	for _, handle := range []string{"@bob@remote.example", "bob", "bob@", "@remote.example"} {
		_, err := h.resolver.Resolve(handle, true, false)
		assert.ErrorIs(t, err, shared.ErrInvalidHandle, handle)
	}
}

func TestResolveBindsToCanonicalSubject(t *testing.T) {
	h := setupHarness(t)

	h.mockWf.EXPECT().Lookup("bob@remote.example").
		Return(webfingerResult(robertUri, "Robert@remote.example"), nil).Times(1)

	idn, err := h.resolver.Resolve("bob@Remote.Example", true, false)
	require.NoError(t, err)
	assert.Equal(t, robertUri, idn.ActorUri)
	assert.Equal(t, "Robert", idn.Username)
	assert.Equal(t, remoteDomain, idn.Domain)
	assert.False(t, idn.Local)
	assert.Equal(t, dal.IdentityOutdated, idn.State)

	// Second lookup of the alias hits the cache, and lands on the same row
	again, err := h.resolver.Resolve("bob@remote.example", true, false)
	require.NoError(t, err)
	assert.Equal(t, idn.Id, again.Id)

	// The canonical handle is found locally, case-insensitively
	canon, err := h.resolver.Resolve("robert@remote.example", false, false)
	require.NoError(t, err)
	assert.Equal(t, idn.Id, canon.Id)

	byUri, err := h.resolver.ByActorUri(robertUri)
	require.NoError(t, err)
	assert.Equal(t, idn.Id, byUri.Id)
}

func TestResolveIsIdempotent(t *testing.T) {
	h := setupHarness(t)

	h.mockWf.EXPECT().Lookup("robert@remote.example").
		Return(webfingerResult(robertUri, "robert@remote.example"), nil).Times(1)

	first, err := h.resolver.Resolve("robert@remote.example", true, false)
	require.NoError(t, err)
	second, err := h.resolver.Resolve("robert@remote.example", true, false)
	require.NoError(t, err)
	assert.Equal(t, first.Id, second.Id)
}

func TestResolveDoesNotCacheFailures(t *testing.T) {
	h := setupHarness(t)

	h.mockWf.EXPECT().Lookup("ghost@remote.example").Return(nil, shared.ErrNotFound).Times(2)

	_, err := h.resolver.Resolve("ghost@remote.example", true, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.resolver.Resolve("ghost@remote.example", true, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolvePassesProtocolErrors(t *testing.T) {
	h := setupHarness(t)

	wfErr := &shared.WebfingerError{Url: "https://remote.example/.well-known/webfinger", Status: 429}
	h.mockWf.EXPECT().Lookup("bob@remote.example").Return(nil, wfErr)

	_, err := h.resolver.Resolve("bob@remote.example", true, false)
	assert.ErrorIs(t, err, shared.ErrProtocol)
}

func TestResolveNeverQueriesLocalOrBlockedDomains(t *testing.T) {
	h := setupHarness(t)
	h.localIdentity(t, 1, "alice")
	require.NoError(t, h.domains.SetBlocked("spam.example", true))

	// No webfinger expectations: any lookup fails the test
	_, err := h.resolver.Resolve("nobody@site.example", true, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = h.resolver.Resolve("spammer@spam.example", true, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	alice, err := h.resolver.Resolve("ALICE@site.example", true, true)
	require.NoError(t, err)
	assert.True(t, alice.Local)
}

func TestResolveRefusesSubjectInLocalDomain(t *testing.T) {
	h := setupHarness(t)
	malloryUri := "https://evil.example/users/mallory"

	h.mockWf.EXPECT().Lookup("mallory@evil.example").
		Return(webfingerResult(malloryUri, "root@site.example"), nil)

	_, err := h.resolver.Resolve("mallory@evil.example", true, false)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	planted, err := h.repo.GetIdentityByUsernameAndDomain("root", siteDomain, false)
	require.NoError(t, err)
	assert.Nil(t, planted)
	_, err = h.resolver.ByActorUri(malloryUri)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	root := h.localIdentity(t, 7, "root")
	assert.True(t, root.Local)
	assert.Equal(t, "https://site.example/@root@site.example/", root.ActorUri)
}

func TestResolveLocalOnlySkipsRemote(t *testing.T) {
	h := setupHarness(t)
	h.remoteIdentity(t, "bob", remoteDomain)

	_, err := h.resolver.Resolve("bob@remote.example", true, true)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveHonorsRemoteFetchSwitch(t *testing.T) {
	h := setupHarness(t)
	h.cfg.RemoteFetch = false

	_, err := h.fed.ResolveHandle("bob@remote.example", true)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestResolveUsesSharedCache(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := setupHarness(t)
	mockCache := mocks.NewMockICache(ctrl)
	resolver := logic.NewIdentityResolver(h.cfg, h.mockLogger, h.repo, h.mockMetrics, mockCache, h.mockWf,
		h.mockActors, h.domains)

	cached := []byte(`{"actor_uri":"` + robertUri + `","subject":"robert@remote.example"}`)
	mockCache.EXPECT().Get(gomock.Any()).Return(cached, true)

	idn, err := resolver.Resolve("bob@remote.example", true, false)
	require.NoError(t, err)
	assert.Equal(t, "robert", idn.Username)
}

func TestGetIdentityValidatesId(t *testing.T) {
	h := setupHarness(t)

	_, err := h.resolver.GetIdentity(42)
	assert.ErrorIs(t, err, shared.ErrInvalidIdentifier)
	_, err = h.resolver.GetIdentity(shared.GenerateId(shared.IdTypeIdentity))
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRefreshRemoteIdentity(t *testing.T) {
	h := setupHarness(t)
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	h.mockActors.EXPECT().Retrieve(bob.ActorUri).Return(&dto.UserInfo{
		Id:                bob.ActorUri,
		PreferredUserName: "bob",
		Name:              "Bob B.",
		Summary:           "<p>hi</p>",
		Inbox:             bob.ActorUri + "/inbox",
		Endpoints:         dto.UserEndpoints{SharedInbox: "https://remote.example/inbox"},
		PublicKey:         dto.PublicKey{Id: bob.ActorUri + "#main-key", PublicKeyPem: "pem"},
		ManuallyApproves:  true,
		Url:               []any{map[string]any{"type": "Link", "href": "https://remote.example/@bob"}},
	}, nil).Times(1)

	idn, err := h.fed.RefreshIdentity(bob.Id)
	require.NoError(t, err)
	assert.Equal(t, "Bob B.", idn.Name)
	assert.Equal(t, dal.IdentityUpdated, idn.State)
	assert.True(t, idn.ManuallyApprovesFollowers)
	assert.Equal(t, "https://remote.example/@bob", idn.ProfileUri)

	// Fresh now: no second fetch
	again, err := h.fed.RefreshIdentity(bob.Id)
	require.NoError(t, err)
	assert.Equal(t, "Bob B.", again.Name)

	stored, err := h.repo.GetIdentity(bob.Id)
	require.NoError(t, err)
	assert.Equal(t, "pem", stored.PublicKey)
	require.NotNil(t, stored.Fetched)
	assert.WithinDuration(t, time.Now(), *stored.Fetched, time.Minute)
}

func TestRefreshRejectsMismatchedActor(t *testing.T) {
	h := setupHarness(t)
	bob := h.remoteIdentity(t, "bob", remoteDomain)

	h.mockActors.EXPECT().Retrieve(bob.ActorUri).Return(&dto.UserInfo{Id: "https://evil.example/users/bob"}, nil)
	_, err := h.resolver.Refresh(bob.Id, time.Hour)
	assert.ErrorIs(t, err, shared.ErrProtocol)

	h.mockActors.EXPECT().Retrieve(bob.ActorUri).Return(nil, shared.ErrNotFound)
	_, err = h.resolver.Refresh(bob.Id, time.Hour)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRefreshLocalIdentityFails(t *testing.T) {
	h := setupHarness(t)
	alice := h.localIdentity(t, 1, "alice")

	_, err := h.resolver.Refresh(alice.Id, time.Hour)
	var precondition *shared.PreconditionError
	assert.True(t, errors.As(err, &precondition))
}
