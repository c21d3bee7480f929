package logic

import (
	"fedi_core/dal"
	"fedi_core/shared"
)

// ILocalAccounts binds accounts of the host application to local identities.
type ILocalAccounts interface {
	InitIdentityForLocalUser(userId int64, username string, discoverable bool) (*dal.Identity, error)
	GenerateKeypair(identityId int64) (*dal.Identity, error)
	GetIdentityByLocalUser(userId int64) (*dal.Identity, error)
	GetLocalUserByIdentity(identityId int64) (int64, error)
}

type localAccounts struct {
	logger   shared.ILogger
	repo     dal.IRepo
	keyStore IKeyStore
	domains  IDomainRegistry
}

func NewLocalAccounts(logger shared.ILogger, repo dal.IRepo, keyStore IKeyStore, domains IDomainRegistry) ILocalAccounts {
	return &localAccounts{logger, repo, keyStore, domains}
}

// InitIdentityForLocalUser is idempotent. Users without a username are skipped with a nil identity.
func (la *localAccounts) InitIdentityForLocalUser(userId int64, username string, discoverable bool) (*dal.Identity, error) {

	if username == "" {
		la.logger.Warnf("User %d has no username; not creating identity", userId)
		return nil, nil
	}

	domain, err := la.domains.GetLocalDomain()
	if err != nil {
		return nil, err
	}

	// Key generation is slow: do it before taking the write lock, and only if needed
	existing, err := la.repo.GetIdentityByUsernameAndDomain(username, domain.Domain, true)
	if err != nil {
		return nil, err
	}
	var pubKey, privKey string
	if existing == nil || existing.PrivateKey == "" {
		if pubKey, privKey, err = la.keyStore.MakeKeyPair(); err != nil {
			return nil, err
		}
	}

	idb := shared.IdBuilder{Host: domain.UriDomain()}
	var res *dal.Identity
	err = la.repo.RunInTx(func(tx dal.IRepo) error {

		if err := tx.UpsertUser(&dal.User{Id: userId, Email: "@" + username}); err != nil {
			return err
		}

		idn, err := tx.GetIdentityByUsernameAndDomain(username, domain.Domain, true)
		if err != nil {
			return err
		}
		if idn == nil {
			actorUri := idb.ActorUrl(username, domain.Domain)
			var isNew bool
			isNew, idn, err = tx.AddIdentityIfNotExist(&dal.Identity{
				ActorUri:       actorUri,
				Username:       username,
				Domain:         domain.Domain,
				Name:           username,
				Local:          true,
				Discoverable:   discoverable,
				State:          dal.IdentityUpdated,
				PublicKey:      pubKey,
				PublicKeyId:    shared.ActorKeyId(actorUri),
				PrivateKey:     privKey,
				InboxUri:       shared.ActorInbox(actorUri),
				SharedInboxUri: idb.SharedInbox(),
				ProfileUri:     idb.ProfileUrl(username),
			})
			if err != nil {
				return err
			}
			if isNew {
				la.logger.Infof("Created local identity %s@%s", username, domain.Domain)
			}
		}
		if !idn.Local {
			return shared.NewPreconditionError("%s@%s is held by remote actor %s", username, domain.Domain, idn.ActorUri)
		}
		if idn.PrivateKey == "" && privKey != "" {
			idn.PublicKey, idn.PublicKeyId, idn.PrivateKey = pubKey, shared.ActorKeyId(idn.ActorUri), privKey
			if err = tx.SetIdentityKeys(idn.Id, idn.PublicKey, idn.PublicKeyId, idn.PrivateKey); err != nil {
				return err
			}
		}
		if err = tx.LinkUserIdentity(userId, idn.Id); err != nil {
			return err
		}
		res = idn
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (la *localAccounts) GenerateKeypair(identityId int64) (*dal.Identity, error) {

	idn, err := la.repo.GetIdentity(identityId)
	if err != nil {
		return nil, err
	}
	if idn == nil {
		return nil, shared.ErrNotFound
	}
	if !idn.Local {
		return nil, shared.NewPreconditionError("cannot generate keypair for remote identity %d", identityId)
	}
	pubKey, privKey, err := la.keyStore.MakeKeyPair()
	if err != nil {
		return nil, err
	}
	idn.PublicKey, idn.PublicKeyId, idn.PrivateKey = pubKey, shared.ActorKeyId(idn.ActorUri), privKey
	if err = la.repo.SetIdentityKeys(idn.Id, idn.PublicKey, idn.PublicKeyId, idn.PrivateKey); err != nil {
		return nil, err
	}
	return idn, nil
}

func (la *localAccounts) GetIdentityByLocalUser(userId int64) (*dal.Identity, error) {
	identityId, err := la.repo.GetIdentityIdForUser(userId)
	if err != nil {
		return nil, err
	}
	if identityId == 0 {
		return nil, shared.ErrNotFound
	}
	idn, err := la.repo.GetIdentity(identityId)
	if err != nil {
		return nil, err
	}
	if idn == nil {
		return nil, shared.ErrNotFound
	}
	return idn, nil
}

func (la *localAccounts) GetLocalUserByIdentity(identityId int64) (int64, error) {
	userId, err := la.repo.GetUserIdForIdentity(identityId)
	if err != nil {
		return 0, err
	}
	if userId == 0 {
		return 0, shared.ErrNotFound
	}
	return userId, nil
}
