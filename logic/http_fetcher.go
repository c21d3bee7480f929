package logic

import (
	"crypto/rsa"
	"fedi_core/shared"
	"fmt"
	"github.com/go-fed/httpsig"
	"io"
	"net/http"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_http_fetcher.go -package mocks fedi_core/logic IHttpFetcher

// IHttpFetcher performs the outbound GETs of discovery: host-meta, webfinger, actor documents, nodeinfo.
type IHttpFetcher interface {
	Get(url, accept, label string) (*FetchResult, error)
}

type FetchResult struct {
	Status   int
	Body     []byte
	FinalUrl string // after redirects
}

// Remote documents we read are small; anything bigger is truncated and will fail to parse.
const maxFetchBytes = 1 << 20

type httpFetcher struct {
	cfg       *shared.Config
	logger    shared.ILogger
	userAgent shared.IUserAgent
	metrics   IMetrics
	keyStore  IKeyStore
	client    *http.Client
}

func NewHttpFetcher(cfg *shared.Config,
	logger shared.ILogger,
	userAgent shared.IUserAgent,
	metrics IMetrics,
	keyStore IKeyStore,
) IHttpFetcher {
	client := &http.Client{Timeout: cfg.RequestTimeout()}
	return &httpFetcher{cfg, logger, userAgent, metrics, keyStore, client}
}

func (hf *httpFetcher) Get(url, accept, label string) (*FetchResult, error) {

	obs := hf.metrics.StartApubRequestOut(label)
	defer obs.Finish()

	req, err := http.NewRequest("GET", url, nil)
	if err != nil {
		return nil, err
	}
	hf.userAgent.AddUserAgent(req)
	req.Header.Set("Accept", accept)
	req.Header.Set("host", req.URL.Host)
	req.Header.Set("date", time.Now().UTC().Format(http.TimeFormat))

	if keyId, privKey, keyErr := hf.keyStore.GetFetchKey(); keyErr != nil {
		hf.logger.Warnf("Signed fetch key unavailable, fetching %s unsigned: %v", url, keyErr)
	} else if privKey != nil {
		if err = signGet(req, keyId, privKey); err != nil {
			return nil, err
		}
	}

	resp, err := hf.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", url, err)
	}
	return &FetchResult{
		Status:   resp.StatusCode,
		Body:     body,
		FinalUrl: resp.Request.URL.String(),
	}, nil
}

func signGet(req *http.Request, keyId string, privKey *rsa.PrivateKey) error {
	signer, _, err := httpsig.NewSigner(
		[]httpsig.Algorithm{httpsig.RSA_SHA256},
		httpsig.DigestSha256,
		[]string{httpsig.RequestTarget, "host", "date"},
		httpsig.Signature,
		0)
	if err != nil {
		return err
	}
	return signer.SignRequest(privKey, keyId, req, nil)
}
