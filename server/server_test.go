package server

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/logic"
	"fedi_core/shared"
	"fedi_core/test/mocks"
	"fedi_core/texts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
)

const testApiKey = "key-0123456789"
const testMetricsAuth = "scrape-secret"

type serverFixture struct {
	handler http.Handler
	inbox   logic.IInboxQueue
	alice   *dal.Identity
}

func setupServer(t *testing.T) *serverFixture {

	ctrl := gomock.NewController(t)
	mockLogger := mocks.NewMockILogger(ctrl)
	mockLogger.EXPECT().Errorf(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Warnf(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Info(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Infof(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Debug(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Debugf(gomock.Any(), gomock.Any()).AnyTimes()
	mockLogger.EXPECT().Printf(gomock.Any(), gomock.Any()).AnyTimes()

	mockMetrics := mocks.NewMockIMetrics(ctrl)
	obs := mocks.NewMockIRequestObserver(ctrl)
	obs.EXPECT().Finish().AnyTimes()
	mockMetrics.EXPECT().StartApubRequestIn(gomock.Any()).Return(obs).AnyTimes()
	mockMetrics.EXPECT().InboxAppended(gomock.Any()).AnyTimes()
	mockMetrics.EXPECT().InboxQueueLength(gomock.Any()).AnyTimes()

	mockKeyStore := mocks.NewMockIKeyStore(ctrl)
	mockKeyStore.EXPECT().MakeKeyPair().Return("pub-pem", "priv-pem", nil).AnyTimes()

	cfg := &shared.Config{
		SiteDomain:    "site.example",
		DbFile:        filepath.Join(t.TempDir(), "test.db"),
		InboxMaxBytes: 256,
		Secrets: shared.Secrets{
			ApiKeys:     []string{testApiKey},
			MetricsAuth: testMetricsAuth,
		},
	}
	cfg.ApplyDefaults()

	repo := dal.NewRepo(cfg, mockLogger)
	repo.InitUpdateDb()
	domains := logic.NewDomainRegistry(cfg, mockLogger, repo, mocks.NewMockIHttpFetcher(ctrl))
	accounts := logic.NewLocalAccounts(mockLogger, repo, mockKeyStore, domains)
	alice, err := accounts.InitIdentityForLocalUser(1, "alice", true)
	require.NoError(t, err)

	inbox := logic.NewInboxQueue(mockLogger, repo, mockMetrics)
	groups := []IHandlerGroup{
		NewApubHandlerGroup(cfg, mockLogger, mockMetrics, texts.NewTexts(), logic.NewUserDirectory(mockLogger, repo), inbox),
		NewApiHandlerGroup(cfg, mockLogger, inbox),
		NewMetricsHandlerGroup(cfg, mockLogger),
	}
	return &serverFixture{
		handler: trimSlashHandler(NewMux(groups, mockLogger)),
		inbox:   inbox,
		alice:   alice,
	}
}

func (f *serverFixture) do(method, url, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	f.handler.ServeHTTP(rr, req)
	return rr
}

func TestHostMeta(t *testing.T) {
	f := setupServer(t)

	rr := f.do("GET", "/.well-known/host-meta", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeXrd, rr.Header().Get("Content-Type"))
	assert.Contains(t, rr.Body.String(), `template="https://site.example/.well-known/webfinger?resource={uri}"`)
	assert.Equal(t, "no-cache, no-store, must-revalidate", rr.Header().Get("Cache-Control"))
}

func TestWebfinger(t *testing.T) {
	f := setupServer(t)

	rr := f.do("GET", "/.well-known/webfinger?resource=acct:alice@site.example", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeJrd, rr.Header().Get("Content-Type"))
	var resp dto.WebfingerResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "acct:alice@site.example", resp.Subject)

	tests := []struct {
		url  string
		code int
	}{
		{"/.well-known/webfinger", http.StatusBadRequest},
		{"/.well-known/webfinger?resource=acct:bob@site.example", http.StatusNotFound},
		{"/.well-known/webfinger?resource=acct:alice@elsewhere.example", http.StatusNotFound},
		{"/.well-known/webfinger?resource=alice", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr = f.do("GET", tt.url, "", nil)
		assert.Equal(t, tt.code, rr.Code, tt.url)
	}
}

func TestActorDocument(t *testing.T) {
	f := setupServer(t)

	rr := f.do("GET", f.alice.ActorUri, "", map[string]string{"Accept": contentTypeActivity})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, contentTypeActivity, rr.Header().Get("Content-Type"))
	var info dto.UserInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, f.alice.ActorUri, info.Id)
	assert.Equal(t, f.alice.InboxUri, info.Inbox)

	rr = f.do("GET", f.alice.ActorUri, "", map[string]string{"Accept": "text/html"})
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "https://site.example/@alice/", rr.Header().Get("Location"))

	rr = f.do("GET", "/@bob@site.example", "", map[string]string{"Accept": contentTypeActivity})
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestInboxPost(t *testing.T) {
	f := setupServer(t)

	payload := `{"type":"Follow","actor":"https://remote.example/users/bob","object":"` + f.alice.ActorUri + `"}`
	for _, url := range []string{f.alice.InboxUri, "/inbox/"} {
		rr := f.do("POST", url, payload, map[string]string{"Content-Type": contentTypeActivity})
		require.Equal(t, http.StatusOK, rr.Code, url)
		var resp dto.InboxAppendResp
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))

		msg, err := f.inbox.Get(resp.Id)
		require.NoError(t, err)
		assert.Equal(t, payload, string(msg.Message))
	}

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty", "", http.StatusBadRequest},
		{"not json", "{nope", http.StatusBadRequest},
		{"too large", `{"content":"` + strings.Repeat("x", 300) + `"}`, http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do("POST", "/inbox", tt.body, nil)
			assert.Equal(t, tt.code, rr.Code)
		})
	}

	count, err := f.inbox.Count(dal.InboxReceived)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInternalApi(t *testing.T) {
	f := setupServer(t)

	rr := f.do("POST", "/api/internal", `{"action":"refresh"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = f.do("POST", "/api/internal", `{"action":"refresh"}`, map[string]string{apiKeyHeader: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do("POST", "/api/internal", `{"action":"refresh"}`, map[string]string{apiKeyHeader: testApiKey})
	require.Equal(t, http.StatusOK, rr.Code)
	var resp dto.InboxAppendResp
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	msg, err := f.inbox.Get(resp.Id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"__internal__","object":{"action":"refresh"}}`, string(msg.Message))

	rr = f.do("POST", "/api/internal", `not json`, map[string]string{apiKeyHeader: testApiKey})
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	require.NoError(t, f.inbox.MarkFailed(resp.Id))
	rr = f.do("GET", "/api/inbox/counts", "", map[string]string{apiKeyHeader: testApiKey})
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"received":0,"processed":0,"failed":1}`, rr.Body.String())
}

func TestMetricsAuth(t *testing.T) {
	f := setupServer(t)

	rr := f.do("GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	rr = f.do("GET", "/metrics", "", map[string]string{metricsAuthHeader: "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do("GET", "/metrics", "", map[string]string{metricsAuthHeader: testMetricsAuth})
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = f.do("GET", "/metrics", "", map[string]string{metricsAuthHeader: "Bearer " + testMetricsAuth})
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "promhttp_metric_handler_requests_total")
}

func TestUnknownRoute(t *testing.T) {
	f := setupServer(t)

	rr := f.do("GET", "/nothing/here", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
