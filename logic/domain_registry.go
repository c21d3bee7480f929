package logic

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/shared"
	"fmt"
	"net/http"
	"strings"
)

type IDomainRegistry interface {
	GetOrCreateRemote(domain string) (*dal.Domain, error)
	Find(domainOrServiceDomain string) (*dal.Domain, error)
	AvailableForUser(userId int64) ([]*dal.Domain, error)
	GrantToUser(userId int64, domain string) error
	GetLocalDomain() (*dal.Domain, error)
	IsBlocked(domain string) (bool, error)
	SetBlocked(domain string, blocked bool) error
	RefreshNodeInfo(domain string) error
	GetNodeName(domain string) (string, error)
}

const nodeInfoSchemaPrefix = "http://nodeinfo.diaspora.software/ns/schema/2."

type domainRegistry struct {
	cfg     *shared.Config
	logger  shared.ILogger
	repo    dal.IRepo
	fetcher IHttpFetcher
}

func NewDomainRegistry(cfg *shared.Config, logger shared.ILogger, repo dal.IRepo, fetcher IHttpFetcher) IDomainRegistry {
	return &domainRegistry{cfg, logger, repo, fetcher}
}

// GetOrCreateRemote returns the existing row unchanged if the domain is already known, local or not.
func (dr *domainRegistry) GetOrCreateRemote(domain string) (*dal.Domain, error) {
	domain = strings.ToLower(domain)
	if domain == "" {
		return nil, fmt.Errorf("%w: empty domain", shared.ErrInvalidHandle)
	}
	if domain == strings.ToLower(dr.cfg.SiteDomain) {
		return dr.GetLocalDomain()
	}
	_, res, err := dr.repo.AddDomainIfNotExist(&dal.Domain{Domain: domain})
	return res, err
}

func (dr *domainRegistry) Find(domainOrServiceDomain string) (*dal.Domain, error) {
	res, err := dr.repo.FindDomain(strings.ToLower(domainOrServiceDomain))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, shared.ErrNotFound
	}
	return res, nil
}

func (dr *domainRegistry) AvailableForUser(userId int64) ([]*dal.Domain, error) {
	return dr.repo.GetDomainsForUser(userId)
}

func (dr *domainRegistry) GrantToUser(userId int64, domain string) error {
	d, err := dr.repo.GetDomain(strings.ToLower(domain))
	if err != nil {
		return err
	}
	if d == nil {
		return shared.ErrNotFound
	}
	if !d.Local {
		return shared.NewPreconditionError("cannot grant remote domain %s", d.Domain)
	}
	return dr.repo.GrantDomainToUser(userId, d.Domain)
}

// GetLocalDomain returns the site's own domain, creating it on first use.
func (dr *domainRegistry) GetLocalDomain() (*dal.Domain, error) {
	siteDomain := strings.ToLower(dr.cfg.SiteDomain)
	if siteDomain == "" {
		return nil, shared.NewPreconditionError("site domain is not configured")
	}
	d, err := dr.repo.GetDomain(siteDomain)
	if err != nil || d != nil {
		return d, err
	}
	isNew, d, err := dr.repo.AddDomainIfNotExist(&dal.Domain{
		Domain:        siteDomain,
		ServiceDomain: strings.ToLower(dr.cfg.SiteServiceDomain),
		Local:         true,
		Public:        true,
		IsDefault:     true,
	})
	if err != nil {
		return nil, err
	}
	if isNew {
		dr.logger.Infof("Created local domain %s", siteDomain)
	}
	return d, nil
}

func (dr *domainRegistry) IsBlocked(domain string) (bool, error) {
	d, err := dr.repo.GetDomain(strings.ToLower(domain))
	if err != nil || d == nil {
		return false, err
	}
	return d.Blocked, nil
}

// SetBlocked is the only way to take a domain out of circulation; domains are never deleted.
func (dr *domainRegistry) SetBlocked(domain string, blocked bool) error {
	d, err := dr.GetOrCreateRemote(domain)
	if err != nil {
		return err
	}
	if d.Local && blocked {
		return shared.NewPreconditionError("cannot block local domain %s", d.Domain)
	}
	return dr.repo.SetDomainBlocked(d.Domain, blocked)
}

// RefreshNodeInfo fetches the domain's nodeinfo through the well-known index and stores the raw document.
func (dr *domainRegistry) RefreshNodeInfo(domain string) error {

	d, err := dr.repo.GetDomain(strings.ToLower(domain))
	if err != nil {
		return err
	}
	if d == nil {
		return shared.ErrNotFound
	}
	if d.Local || d.Blocked {
		return nil
	}

	indexUrl := fmt.Sprintf("https://%s/.well-known/nodeinfo", d.UriDomain())
	res, err := dr.fetcher.Get(indexUrl, "application/json", "nodeinfo")
	if err != nil || res.Status != http.StatusOK {
		dr.logger.Debugf("Nodeinfo index of %s unavailable: %v", d.Domain, err)
		return shared.ErrNotFound
	}
	var links dto.NodeInfoLinks
	if err = json.Unmarshal(res.Body, &links); err != nil {
		return fmt.Errorf("%w: malformed nodeinfo index from %s: %v", shared.ErrProtocol, d.Domain, err)
	}

	// Highest 2.x schema wins
	href, bestRel := "", ""
	for _, link := range links.Links {
		if strings.HasPrefix(link.Rel, nodeInfoSchemaPrefix) && link.Rel > bestRel {
			href, bestRel = link.Href, link.Rel
		}
	}
	if href == "" {
		return shared.ErrNotFound
	}

	res, err = dr.fetcher.Get(href, "application/json", "nodeinfo")
	if err != nil || res.Status != http.StatusOK {
		dr.logger.Debugf("Nodeinfo of %s unavailable: %v", d.Domain, err)
		return shared.ErrNotFound
	}
	var nodeInfo dto.NodeInfo
	if err = json.Unmarshal(res.Body, &nodeInfo); err != nil {
		return fmt.Errorf("%w: malformed nodeinfo from %s: %v", shared.ErrProtocol, d.Domain, err)
	}
	return dr.repo.SetDomainNodeInfo(d.Domain, json.RawMessage(res.Body))
}

// GetNodeName returns the node name from stored nodeinfo, or an empty string if there is none.
func (dr *domainRegistry) GetNodeName(domain string) (string, error) {
	d, err := dr.repo.GetDomain(strings.ToLower(domain))
	if err != nil {
		return "", err
	}
	if d == nil {
		return "", shared.ErrNotFound
	}
	if len(d.NodeInfo) == 0 {
		return "", nil
	}
	var nodeInfo dto.NodeInfo
	if err = json.Unmarshal(d.NodeInfo, &nodeInfo); err != nil || len(nodeInfo.Metadata) == 0 {
		return "", nil
	}
	var meta dto.NodeInfoMetadata
	if err = json.Unmarshal(nodeInfo.Metadata, &meta); err != nil {
		return "", nil
	}
	return meta.NodeName, nil
}
