package logic

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fedi_core/dal"
	"fedi_core/shared"
	"fmt"
	"sync"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_key_store.go -package mocks fedi_core/logic IKeyStore

type IKeyStore interface {
	MakeKeyPair() (pubKey, privKey string, err error)
	GetPrivKey(identityId int64) (*rsa.PrivateKey, error)
	// GetFetchKey returns the key of the configured signed-fetch actor, or a nil key if none is configured.
	GetFetchKey() (keyId string, key *rsa.PrivateKey, err error)
}

const rsaKeyBits = 2048

type keyStore struct {
	cfg        *shared.Config
	repo       dal.IRepo
	muFetch    sync.Mutex
	fetchKey   *rsa.PrivateKey
	fetchKeyId string
}

func NewKeyStore(cfg *shared.Config, repo dal.IRepo) IKeyStore {
	return &keyStore{cfg: cfg, repo: repo}
}

func (ks *keyStore) GetPrivKey(identityId int64) (*rsa.PrivateKey, error) {

	idn, err := ks.repo.GetIdentity(identityId)
	if err != nil {
		return nil, err
	}
	if idn == nil {
		return nil, shared.ErrNotFound
	}
	if !idn.Local || idn.PrivateKey == "" {
		return nil, shared.NewPreconditionError("identity %d has no private key", identityId)
	}
	return parsePrivKey(idn.PrivateKey)
}

func (ks *keyStore) GetFetchKey() (keyId string, key *rsa.PrivateKey, err error) {

	if ks.cfg.SignedFetchActor == "" {
		return "", nil, nil
	}

	ks.muFetch.Lock()
	defer ks.muFetch.Unlock()

	if ks.fetchKey != nil {
		return ks.fetchKeyId, ks.fetchKey, nil
	}
	idn, err := ks.repo.GetIdentityByActorUri(ks.cfg.SignedFetchActor)
	if err != nil {
		return "", nil, err
	}
	if idn == nil || !idn.Local {
		return "", nil, fmt.Errorf("signed fetch actor %s is not a local identity: %w",
			ks.cfg.SignedFetchActor, shared.ErrNotFound)
	}
	if key, err = parsePrivKey(idn.PrivateKey); err != nil {
		return "", nil, err
	}
	ks.fetchKey, ks.fetchKeyId = key, idn.PublicKeyId
	return ks.fetchKeyId, ks.fetchKey, nil
}

func parsePrivKey(privKeyStr string) (*rsa.PrivateKey, error) {

	block, _ := pem.Decode([]byte(privKeyStr))
	if block == nil {
		return nil, errors.New("private key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privKey, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not an RSA key")
	}
	return privKey, nil
}

func (ks *keyStore) MakeKeyPair() (pubKey, privKey string, err error) {

	pubKey = ""
	privKey = ""
	err = nil

	// Generate RSA key
	var key *rsa.PrivateKey
	key, err = rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return
	}

	// Encode private key to PKCS#8
	var keyRaw []byte
	if keyRaw, err = x509.MarshalPKCS8PrivateKey(key); err != nil {
		return
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyRaw})

	// Encode public key to SubjectPublicKeyInfo
	var pubRaw []byte
	if pubRaw, err = x509.MarshalPKIXPublicKey(key.Public()); err != nil {
		return
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubRaw})

	pubKey = string(pubPEM)
	privKey = string(keyPEM)

	return
}
