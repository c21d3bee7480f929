package logic

import (
	"encoding/json"
	"encoding/xml"
	"errors"
	"fedi_core/dto"
	"fedi_core/shared"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_webfinger_client.go -package mocks fedi_core/logic IWebfingerClient

// IWebfingerClient discovers the actor URI behind a user@domain handle.
// A handle that does not exist, or a server that cannot be reached, yields ErrNotFound.
type IWebfingerClient interface {
	Lookup(handle string) (*WebfingerResult, error)
}

type WebfingerResult struct {
	ActorUri string
	Subject  string // canonical handle, without "acct:"
	Username string
	Domain   string
	Raw      json.RawMessage
}

const (
	relLrdd          = "lrdd"
	relSelf          = "self"
	typeJrd          = "application/jrd+json"
	typeActivity     = "application/activity+json"
	resourceHolder   = "{uri}"
	hostMetaPattern  = "https://%s/.well-known/host-meta"
	webfingerPattern = "https://%s/.well-known/webfinger?resource={uri}"
)

// Statuses that simply mean the handle is not there, or the server will not tell.
var notFoundStatuses = map[int]bool{
	http.StatusBadRequest:    true,
	http.StatusUnauthorized:  true,
	http.StatusForbidden:     true,
	http.StatusNotFound:      true,
	http.StatusNotAcceptable: true,
	http.StatusGone:          true,
}

type webfingerClient struct {
	logger  shared.ILogger
	fetcher IHttpFetcher
}

func NewWebfingerClient(logger shared.ILogger, fetcher IHttpFetcher) IWebfingerClient {
	return &webfingerClient{logger, fetcher}
}

func (wc *webfingerClient) Lookup(handle string) (*WebfingerResult, error) {

	_, domain, err := shared.ParseHandle(handle)
	if err != nil {
		return nil, err
	}

	template := wc.getTemplate(domain)
	wfUrl := strings.Replace(template, resourceHolder, url.QueryEscape("acct:"+handle), 1)

	res, err := wc.fetcher.Get(wfUrl, "application/json", "webfinger")
	if err != nil {
		wc.logger.Infof("Webfinger request to %s failed: %v", wfUrl, err)
		return nil, shared.ErrNotFound
	}
	if res.Status >= 500 || notFoundStatuses[res.Status] {
		wc.logger.Debugf("Webfinger %s: status %d", wfUrl, res.Status)
		return nil, shared.ErrNotFound
	}
	if res.Status >= 400 {
		return nil, &shared.WebfingerError{Url: wfUrl, Status: res.Status, Body: string(res.Body)}
	}

	var wfResp dto.WebfingerResp
	if err = json.Unmarshal(res.Body, &wfResp); err != nil {
		if strings.Contains(strings.ToLower(string(res.Body)), "not found") {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("%w: malformed webfinger response from %s: %v", shared.ErrProtocol, wfUrl, err)
	}

	return parseWebfinger(&wfResp, res.Body)
}

// getTemplate reads the webfinger URL template from host-meta, falling back to the well-known path.
func (wc *webfingerClient) getTemplate(domain string) string {

	fallback := fmt.Sprintf(webfingerPattern, domain)

	res, err := wc.fetcher.Get(fmt.Sprintf(hostMetaPattern, domain), "application/xml", "host-meta")
	if err != nil {
		wc.logger.Debugf("host-meta of %s unavailable: %v", domain, err)
		return fallback
	}
	if res.Status != http.StatusOK {
		return fallback
	}
	var hostMeta dto.HostMeta
	if err = xml.Unmarshal(res.Body, &hostMeta); err != nil {
		wc.logger.Debugf("Malformed host-meta from %s: %v", domain, err)
		return fallback
	}
	for _, link := range hostMeta.Links {
		if link.Rel != relLrdd || (link.Type != "" && link.Type != typeJrd) {
			continue
		}
		if strings.Contains(link.Template, resourceHolder) {
			return link.Template
		}
	}
	return fallback
}

func parseWebfinger(wfResp *dto.WebfingerResp, raw []byte) (*WebfingerResult, error) {

	res := WebfingerResult{Raw: json.RawMessage(raw)}
	for _, link := range wfResp.Links {
		if link.Rel == relSelf && link.Type == typeActivity && link.Href != "" {
			res.ActorUri = link.Href
			break
		}
	}
	if res.ActorUri == "" {
		return nil, shared.ErrNotFound
	}

	var err error
	res.Subject = strings.TrimPrefix(wfResp.Subject, "acct:")
	if res.Username, res.Domain, err = shared.ParseHandle(res.Subject); err != nil {
		if errors.Is(err, shared.ErrInvalidHandle) {
			return nil, fmt.Errorf("%w: webfinger subject %q", shared.ErrProtocol, wfResp.Subject)
		}
		return nil, err
	}
	return &res, nil
}
