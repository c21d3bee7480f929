package logic_test

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fedi_core/logic"
	"fedi_core/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestKeyStore(t *testing.T) {
	h := setupHarness(t)
	ks := logic.NewKeyStore(h.cfg, h.repo)

	pubKey, privKey, err := ks.MakeKeyPair()
	require.NoError(t, err)
	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(t, block)
	assert.Equal(t, "PUBLIC KEY", block.Type)
	_, err = x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(t, err)

	block, _ = pem.Decode([]byte(privKey))
	require.NotNil(t, block)
	assert.Equal(t, "PRIVATE KEY", block.Type)
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	rsaKey, ok := parsed.(*rsa.PrivateKey)
	require.True(t, ok)
	assert.NoError(t, rsaKey.Validate())

	// No fetch actor configured: unsigned fetches
	keyId, key, err := ks.GetFetchKey()
	require.NoError(t, err)
	assert.Equal(t, "", keyId)
	assert.Nil(t, key)

	accounts := logic.NewLocalAccounts(h.mockLogger, h.repo, ks, h.domains)
	alice, err := accounts.InitIdentityForLocalUser(1, "alice", true)
	require.NoError(t, err)

	aliceKey, err := ks.GetPrivKey(alice.Id)
	require.NoError(t, err)
	assert.NoError(t, aliceKey.Validate())

	h.cfg.SignedFetchActor = alice.ActorUri
	keyId, key, err = ks.GetFetchKey()
	require.NoError(t, err)
	assert.Equal(t, alice.PublicKeyId, keyId)
	assert.True(t, key.Equal(aliceKey))

	bob := h.remoteIdentity(t, "bob", remoteDomain)
	var precondition *shared.PreconditionError
	_, err = ks.GetPrivKey(bob.Id)
	assert.ErrorAs(t, err, &precondition)
}

func TestKeyStoreRejectsRemoteFetchActor(t *testing.T) {
	h := setupHarness(t)
	bob := h.remoteIdentity(t, "bob", remoteDomain)
	h.cfg.SignedFetchActor = bob.ActorUri

	_, _, err := logic.NewKeyStore(h.cfg, h.repo).GetFetchKey()
	assert.ErrorIs(t, err, shared.ErrNotFound)
}
