package logic

import (
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/shared"
	"fmt"
	"strings"
	"time"
)

// IUserDirectory answers discovery requests about local identities: webfinger and actor documents.
type IUserDirectory interface {
	GetWebfinger(resource string) (*dto.WebfingerResp, error)
	GetUserInfo(username, domain string) (*dto.UserInfo, error)
}

const relProfilePage = "http://webfinger.net/rel/profile-page"

type userDirectory struct {
	logger shared.ILogger
	repo   dal.IRepo
}

func NewUserDirectory(logger shared.ILogger, repo dal.IRepo) IUserDirectory {
	return &userDirectory{logger, repo}
}

// getLocalIdentity finds a local, not deleted identity. Domain may be given as either domain or service domain.
func (udir *userDirectory) getLocalIdentity(username, domain string) (*dal.Identity, *dal.Domain, error) {

	d, err := udir.repo.FindDomain(strings.ToLower(domain))
	if err != nil {
		return nil, nil, err
	}
	if d == nil || !d.Local {
		return nil, nil, shared.ErrNotFound
	}
	idn, err := udir.repo.GetIdentityByUsernameAndDomain(username, d.Domain, true)
	if err != nil {
		return nil, nil, err
	}
	if idn == nil || idn.Deleted != nil {
		return nil, nil, shared.ErrNotFound
	}
	return idn, d, nil
}

// GetWebfinger accepts "acct:user@domain" or a bare "user@domain".
func (udir *userDirectory) GetWebfinger(resource string) (*dto.WebfingerResp, error) {

	username, domain, err := shared.ParseHandle(resource)
	if err != nil {
		return nil, err
	}
	idn, d, err := udir.getLocalIdentity(username, domain)
	if err != nil {
		return nil, err
	}

	resp := dto.WebfingerResp{
		Subject: fmt.Sprintf("acct:%s@%s", idn.Username, d.Domain),
		Aliases: []string{
			idn.ProfileUri,
			idn.ActorUri,
		},
		Links: []dto.WebfingerLink{
			{
				Rel:  relProfilePage,
				Type: "text/html",
				Href: idn.ProfileUri,
			},
			{
				Rel:  relSelf,
				Type: typeActivity,
				Href: idn.ActorUri,
			},
		},
	}
	return &resp, nil
}

func (udir *userDirectory) GetUserInfo(username, domain string) (*dto.UserInfo, error) {

	idn, _, err := udir.getLocalIdentity(username, domain)
	if err != nil {
		return nil, err
	}

	resp := dto.UserInfo{
		Context: []string{
			"https://www.w3.org/ns/activitystreams",
			"https://w3id.org/security/v1",
		},
		Id:                idn.ActorUri,
		Type:              "Person",
		PreferredUserName: idn.Username,
		Name:              idn.Name,
		Summary:           idn.Summary,
		ManuallyApproves:  idn.ManuallyApprovesFollowers,
		Published:         idn.Created.UTC().Format(time.RFC3339),
		Inbox:             idn.InboxUri,
		Endpoints:         dto.UserEndpoints{SharedInbox: idn.SharedInboxUri},
		PublicKey: dto.PublicKey{
			Id:           idn.PublicKeyId,
			Owner:        idn.ActorUri,
			PublicKeyPem: idn.PublicKey,
		},
		Attachments:  []dto.Attachment{},
		Discoverable: idn.Discoverable,
		Url:          idn.ProfileUri,
	}
	return &resp, nil
}
