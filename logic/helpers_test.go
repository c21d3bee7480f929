package logic_test

import (
	"fedi_core/dal"
	"fedi_core/logic"
	"fedi_core/shared"
	"fedi_core/test/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"path/filepath"
	"testing"
	"time"
)

const siteDomain = "site.example"
const remoteDomain = "remote.example"

func stubLogger(mockLogger *mocks.MockILogger) {
	mockLogger.EXPECT().Error(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Errorf(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Warn(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Warnf(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Infof(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Debugf(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Printf(gomock.Any(), gomock.Any()).AnyTimes()
}

func stubMetrics(ctrl *gomock.Controller, mockMetrics *mocks.MockIMetrics) {
	obs := mocks.NewMockIRequestObserver(ctrl)
	obs.EXPECT().Finish().AnyTimes()
	mockMetrics.EXPECT().StartApubRequestIn(gomock.Any()).Return(obs).AnyTimes()
	mockMetrics.EXPECT().StartApubRequestOut(gomock.Any()).Return(obs).AnyTimes()
	mockMetrics.EXPECT().HandleResolved(gomock.Any()).AnyTimes()
	mockMetrics.EXPECT().InteractionToggled(gomock.Any(), gomock.Any()).AnyTimes()
	mockMetrics.EXPECT().PostSaved(gomock.Any()).AnyTimes()
	mockMetrics.EXPECT().InboxAppended(gomock.Any()).AnyTimes()
	mockMetrics.EXPECT().InboxQueueLength(gomock.Any()).AnyTimes()
	mockMetrics.EXPECT().ServiceStarted().AnyTimes()
}

// Real repo and components over a temporary database; network-facing parts are mocks.
type harness struct {
	cfg          *shared.Config
	mockLogger   *mocks.MockILogger
	mockMetrics  *mocks.MockIMetrics
	mockKeyStore *mocks.MockIKeyStore
	mockFetcher  *mocks.MockIHttpFetcher
	mockWf       *mocks.MockIWebfingerClient
	mockActors   *mocks.MockIActorRetriever
	repo         dal.IRepo
	cache        logic.ICache
	domains      logic.IDomainRegistry
	resolver     logic.IIdentityResolver
	accounts     logic.ILocalAccounts
	rels         logic.IRelationships
	hashtags     logic.IHashtags
	emojis       logic.IEmojis
	posts        logic.IPostLifecycle
	ledger       logic.IInteractionLedger
	inbox        logic.IInboxQueue
	udir         logic.IUserDirectory
	fed          logic.IFederation
}

func setupHarness(t *testing.T) *harness {

	ctrl := gomock.NewController(t)

	h := &harness{
		cfg: &shared.Config{
			SiteDomain:  siteDomain,
			DbFile:      filepath.Join(t.TempDir(), "test.db"),
			RemoteFetch: true,
		},
		mockLogger:   mocks.NewMockILogger(ctrl),
		mockMetrics:  mocks.NewMockIMetrics(ctrl),
		mockKeyStore: mocks.NewMockIKeyStore(ctrl),
		mockFetcher:  mocks.NewMockIHttpFetcher(ctrl),
		mockWf:       mocks.NewMockIWebfingerClient(ctrl),
		mockActors:   mocks.NewMockIActorRetriever(ctrl),
	}
	h.cfg.ApplyDefaults()
	stubLogger(h.mockLogger)
	stubMetrics(ctrl, h.mockMetrics)
	h.mockKeyStore.EXPECT().MakeKeyPair().Return("pub-pem", "priv-pem", nil).AnyTimes()

	h.repo = dal.NewRepo(h.cfg, h.mockLogger)
	h.repo.InitUpdateDb()
	h.cache = logic.NewMemoryCache(100, time.Minute)
	h.domains = logic.NewDomainRegistry(h.cfg, h.mockLogger, h.repo, h.mockFetcher)
	h.resolver = logic.NewIdentityResolver(h.cfg, h.mockLogger, h.repo, h.mockMetrics, h.cache, h.mockWf,
		h.mockActors, h.domains)
	h.accounts = logic.NewLocalAccounts(h.mockLogger, h.repo, h.mockKeyStore, h.domains)
	h.rels = logic.NewRelationships(h.mockLogger, h.repo)
	h.hashtags = logic.NewHashtags(h.mockLogger, h.repo)
	h.emojis = logic.NewEmojis(h.mockLogger, h.repo, h.cache)
	h.posts = logic.NewPostLifecycle(h.mockLogger, h.repo, h.mockMetrics, logic.NewContentExtractor(), h.resolver,
		h.emojis, h.hashtags)
	h.ledger = logic.NewInteractionLedger(h.mockLogger, h.repo, h.mockMetrics)
	h.inbox = logic.NewInboxQueue(h.mockLogger, h.repo, h.mockMetrics)
	h.udir = logic.NewUserDirectory(h.mockLogger, h.repo)
	h.fed = logic.NewFederation(h.cfg, h.mockLogger, h.domains, h.resolver, h.accounts, h.rels, h.posts, h.ledger,
		h.emojis)
	return h
}

func (h *harness) localIdentity(t *testing.T, userId int64, username string) *dal.Identity {
	idn, err := h.accounts.InitIdentityForLocalUser(userId, username, true)
	require.NoError(t, err)
	require.NotNil(t, idn)
	return idn
}

// Stores a remote identity directly, as if resolved earlier.
func (h *harness) remoteIdentity(t *testing.T, username, domain string) *dal.Identity {
	d, err := h.domains.GetOrCreateRemote(domain)
	require.NoError(t, err)
	_, idn, err := h.repo.AddIdentityIfNotExist(&dal.Identity{
		ActorUri: "https://" + d.Domain + "/users/" + username,
		Username: username,
		Domain:   d.Domain,
		State:    dal.IdentityOutdated,
	})
	require.NoError(t, err)
	return idn
}

func webfingerResult(actorUri, subject string) *logic.WebfingerResult {
	username, domain, _ := shared.ParseHandle(subject)
	return &logic.WebfingerResult{ActorUri: actorUri, Subject: subject, Username: username, Domain: domain}
}
