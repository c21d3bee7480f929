package logic

import (
	"encoding/json"
	"errors"
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/shared"
	"fmt"
	"strings"
	"time"
)

type IIdentityResolver interface {
	// Resolve finds the identity behind a user@domain handle. With fetch, unknown remote handles are
	// discovered over the network and stored; localOnly restricts the lookup to local identities.
	Resolve(handle string, fetch, localOnly bool) (*dal.Identity, error)
	ByUsernameAndDomain(username, domain string, fetch, localOnly bool) (*dal.Identity, error)
	ByActorUri(actorUri string) (*dal.Identity, error)
	GetIdentity(id int64) (*dal.Identity, error)
	// Refresh re-reads a remote identity's actor document if it is outdated or older than maxAge.
	Refresh(id int64, maxAge time.Duration) (*dal.Identity, error)
}

// What the lookup cache keeps from a successful webfinger lookup.
type cachedLookup struct {
	ActorUri string `json:"actor_uri"`
	Subject  string `json:"subject"`
}

type identityResolver struct {
	cfg     *shared.Config
	logger  shared.ILogger
	repo    dal.IRepo
	metrics IMetrics
	cache   ICache
	wf      IWebfingerClient
	actors  IActorRetriever
	domains IDomainRegistry
}

func NewIdentityResolver(
	cfg *shared.Config,
	logger shared.ILogger,
	repo dal.IRepo,
	metrics IMetrics,
	cache ICache,
	wf IWebfingerClient,
	actors IActorRetriever,
	domains IDomainRegistry,
) IIdentityResolver {
	return &identityResolver{cfg, logger, repo, metrics, cache, wf, actors, domains}
}

func (ir *identityResolver) Resolve(handle string, fetch, localOnly bool) (*dal.Identity, error) {
	username, domain, err := shared.ParseHandle(handle)
	if err != nil {
		return nil, err
	}
	return ir.ByUsernameAndDomain(username, domain, fetch, localOnly)
}

func (ir *identityResolver) ByUsernameAndDomain(username, domain string, fetch, localOnly bool) (*dal.Identity, error) {

	if username == "" || strings.HasPrefix(username, "@") {
		return nil, fmt.Errorf("%w: bad username %q", shared.ErrInvalidHandle, username)
	}
	domain = strings.ToLower(domain)

	idn, err := ir.repo.GetIdentityByUsernameAndDomain(username, domain, localOnly)
	if err != nil {
		return nil, err
	}
	if idn != nil {
		ir.metrics.HandleResolved(resolveKnown)
		return idn, nil
	}
	if !fetch || localOnly || !ir.cfg.RemoteFetch {
		return nil, shared.ErrNotFound
	}

	// Never query our own domains or blocked ones
	d, err := ir.repo.GetDomain(domain)
	if err != nil {
		return nil, err
	}
	if ir.isSiteDomain(domain) || d != nil && (d.Local || d.Blocked) {
		return nil, shared.ErrNotFound
	}

	lookup, err := ir.lookup(username + "@" + domain)
	if err != nil {
		return nil, err
	}

	// The handle we looked up may be an alias of an identity we already know
	if idn, err = ir.repo.GetIdentityByActorUri(lookup.ActorUri); err != nil || idn != nil {
		return idn, err
	}

	// Bind to the canonical subject, not to what the caller typed
	canonUser, canonDomain, err := shared.ParseHandle(lookup.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: webfinger subject %q", shared.ErrProtocol, lookup.Subject)
	}
	// A remote server cannot speak for our own users
	if ir.isSiteDomain(canonDomain) {
		ir.logger.Warnf("Webfinger for %s@%s claims local subject %s", username, domain, lookup.Subject)
		return nil, shared.ErrNotFound
	}
	canonDomainRow, err := ir.domains.GetOrCreateRemote(canonDomain)
	if err != nil {
		return nil, err
	}
	if canonDomainRow.Local || canonDomainRow.Blocked {
		return nil, shared.ErrNotFound
	}

	isNew, idn, err := ir.repo.AddIdentityIfNotExist(&dal.Identity{
		ActorUri:     lookup.ActorUri,
		Username:     canonUser,
		Domain:       canonDomainRow.Domain,
		Name:         canonUser,
		Discoverable: true,
		State:        dal.IdentityOutdated,
		Restriction:  dal.RestrictionNone,
	})
	if err != nil {
		return nil, err
	}
	if isNew {
		ir.logger.Infof("Created remote identity %s@%s: %s", canonUser, canonDomainRow.Domain, lookup.ActorUri)
	}
	return idn, nil
}

func (ir *identityResolver) isSiteDomain(domain string) bool {
	domain = strings.ToLower(domain)
	return domain == strings.ToLower(ir.cfg.SiteDomain) ||
		ir.cfg.SiteServiceDomain != "" && domain == strings.ToLower(ir.cfg.SiteServiceDomain)
}

// lookup runs webfinger discovery through the cache. Only successful lookups are cached.
func (ir *identityResolver) lookup(handle string) (*cachedLookup, error) {

	key := cacheKey("wf", handle)
	if val, ok := ir.cache.Get(key); ok {
		var res cachedLookup
		if err := json.Unmarshal(val, &res); err == nil && res.ActorUri != "" {
			ir.metrics.HandleResolved(resolveCache)
			return &res, nil
		}
		ir.cache.Delete(key)
	}

	wfRes, err := ir.wf.Lookup(handle)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			ir.metrics.HandleResolved(resolveNotFound)
		} else {
			ir.metrics.HandleResolved(resolveError)
			ir.logger.Warnf("Webfinger lookup of %s failed: %v", handle, err)
		}
		return nil, err
	}
	ir.metrics.HandleResolved(resolveFetched)

	res := cachedLookup{ActorUri: wfRes.ActorUri, Subject: wfRes.Subject}
	if val, err := json.Marshal(&res); err == nil {
		ir.cache.Set(key, val)
	}
	return &res, nil
}

func (ir *identityResolver) ByActorUri(actorUri string) (*dal.Identity, error) {
	idn, err := ir.repo.GetIdentityByActorUri(actorUri)
	if err != nil {
		return nil, err
	}
	if idn == nil {
		return nil, shared.ErrNotFound
	}
	return idn, nil
}

func (ir *identityResolver) GetIdentity(id int64) (*dal.Identity, error) {
	if _, err := shared.GetIdType(id); err != nil {
		return nil, err
	}
	idn, err := ir.repo.GetIdentity(id)
	if err != nil {
		return nil, err
	}
	if idn == nil {
		return nil, shared.ErrNotFound
	}
	return idn, nil
}

func (ir *identityResolver) Refresh(id int64, maxAge time.Duration) (*dal.Identity, error) {

	idn, err := ir.GetIdentity(id)
	if err != nil {
		return nil, err
	}
	if idn.Local {
		return nil, shared.NewPreconditionError("cannot refresh local identity %d", id)
	}
	fresh := idn.State == dal.IdentityUpdated && idn.Fetched != nil && time.Since(*idn.Fetched) < maxAge
	if fresh || !ir.cfg.RemoteFetch {
		return idn, nil
	}

	info, err := ir.actors.Retrieve(idn.ActorUri)
	if err != nil {
		return nil, err
	}
	if info.Id != idn.ActorUri {
		return nil, fmt.Errorf("%w: actor document of %s claims id %s", shared.ErrProtocol, idn.ActorUri, info.Id)
	}

	applyActorInfo(idn, info)
	now := time.Now().UTC()
	idn.Fetched = &now
	idn.State = dal.IdentityUpdated
	if err = ir.repo.UpdateRemoteIdentity(idn); err != nil {
		return nil, err
	}
	return idn, nil
}

func applyActorInfo(idn *dal.Identity, info *dto.UserInfo) {
	idn.Name = info.Name
	if idn.Name == "" {
		idn.Name = info.PreferredUserName
	}
	idn.Summary = info.Summary
	idn.Discoverable = info.Discoverable
	idn.ManuallyApprovesFollowers = info.ManuallyApproves
	idn.InboxUri = info.Inbox
	idn.SharedInboxUri = info.Endpoints.SharedInbox
	idn.PublicKey = info.PublicKey.PublicKeyPem
	idn.PublicKeyId = info.PublicKey.Id
	idn.ProfileUri = linkHref(info.Url)
}

// linkHref reads a URL that may come as a plain string, a Link object, or a list of either.
func linkHref(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case map[string]any:
		if href, ok := v["href"].(string); ok {
			return href
		}
	case []any:
		for _, item := range v {
			if href := linkHref(item); href != "" {
				return href
			}
		}
	}
	return ""
}
