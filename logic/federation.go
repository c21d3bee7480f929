package logic

import (
	"encoding/json"
	"errors"
	"fedi_core/dal"
	"fedi_core/shared"
	"time"
)

// IFederation is the surface the host application uses. Nothing outside this package reaches the
// components behind it directly, apart from the HTTP ingress.
type IFederation interface {
	GetLocalDomain() (*dal.Domain, error)
	GetNodeNameForDomain(domain string) (string, error)

	InitIdentityForLocalUser(userId int64, username string, discoverable bool) (*dal.Identity, error)
	GetIdentity(identityId int64) (*dal.Identity, error)
	GetIdentityByLocalUser(userId int64) (*dal.Identity, error)
	GetLocalUserByIdentity(identityId int64) (int64, error)
	// ResolveHandle looks up user@domain, discovering it over the network if fetch is set.
	ResolveHandle(handle string, fetch bool) (*dal.Identity, error)
	RefreshIdentity(identityId int64) (*dal.Identity, error)

	Follow(sourceId, targetId int64) error
	Unfollow(sourceId, targetId int64) error
	AcceptFollowRequest(sourceId, targetId int64) error
	RejectFollowRequest(sourceId, targetId int64) error
	GetFollowingIds(identityId int64) ([]int64, error)
	GetFollowerIds(identityId int64) ([]int64, error)
	GetFollowingRequestIds(identityId int64) ([]int64, error)
	GetRequestedFollowerIds(identityId int64) ([]int64, error)

	Block(sourceId, targetId int64) error
	Unblock(sourceId, targetId int64) error
	Mute(sourceId, targetId int64, duration time.Duration, includeNotifications bool) error
	Unmute(sourceId, targetId int64) error
	GetMutingIds(identityId int64) ([]int64, error)
	GetBlockingIds(identityId int64) ([]int64, error)
	GetRejectingIds(identityId int64) ([]int64, error)

	// Post edits postId if it is a live post by authorId, and creates a new post otherwise.
	Post(authorId int64, prependContent, content string, visibility dal.Visibility,
		typeData json.RawMessage, postId int64, published *time.Time) (*dal.Post, error)
	Reply(authorId, parentId int64, content string, visibility dal.Visibility) (*dal.Post, error)
	DeletePost(postId int64) error
	GetPostUrl(postId int64) (string, error)
	GetPostStats(postId int64) (*dal.PostStats, error)

	LikePost(postId, identityId int64) error
	UnlikePost(postId, identityId int64) error
	PostLikedBy(postId, identityId int64) (bool, error)
	BoostPost(postId, identityId int64) error
	UnboostPost(postId, identityId int64) error

	// GetEmoji finds an emoji by shortcode; an empty domain means a local one.
	GetEmoji(shortcode, domain string) (*dal.Emoji, error)
}

type federation struct {
	cfg      *shared.Config
	logger   shared.ILogger
	domains  IDomainRegistry
	resolver IIdentityResolver
	accounts ILocalAccounts
	rels     IRelationships
	posts    IPostLifecycle
	ledger   IInteractionLedger
	emojis   IEmojis
}

func NewFederation(
	cfg *shared.Config,
	logger shared.ILogger,
	domains IDomainRegistry,
	resolver IIdentityResolver,
	accounts ILocalAccounts,
	rels IRelationships,
	posts IPostLifecycle,
	ledger IInteractionLedger,
	emojis IEmojis,
) IFederation {
	return &federation{cfg, logger, domains, resolver, accounts, rels, posts, ledger, emojis}
}

func (fed *federation) GetLocalDomain() (*dal.Domain, error) {
	return fed.domains.GetLocalDomain()
}

func (fed *federation) GetNodeNameForDomain(domain string) (string, error) {
	return fed.domains.GetNodeName(domain)
}

func (fed *federation) InitIdentityForLocalUser(userId int64, username string, discoverable bool) (*dal.Identity, error) {
	return fed.accounts.InitIdentityForLocalUser(userId, username, discoverable)
}

func (fed *federation) GetIdentity(identityId int64) (*dal.Identity, error) {
	return fed.resolver.GetIdentity(identityId)
}

func (fed *federation) GetIdentityByLocalUser(userId int64) (*dal.Identity, error) {
	return fed.accounts.GetIdentityByLocalUser(userId)
}

func (fed *federation) GetLocalUserByIdentity(identityId int64) (int64, error) {
	return fed.accounts.GetLocalUserByIdentity(identityId)
}

func (fed *federation) ResolveHandle(handle string, fetch bool) (*dal.Identity, error) {
	return fed.resolver.Resolve(handle, fetch, false)
}

func (fed *federation) RefreshIdentity(identityId int64) (*dal.Identity, error) {
	return fed.resolver.Refresh(identityId, fed.cfg.ActorMaxAge())
}

func (fed *federation) Follow(sourceId, targetId int64) error {
	_, err := fed.rels.Follow(sourceId, targetId)
	return err
}

func (fed *federation) Unfollow(sourceId, targetId int64) error {
	_, err := fed.rels.Unfollow(sourceId, targetId)
	return err
}

func (fed *federation) AcceptFollowRequest(sourceId, targetId int64) error {
	_, err := fed.rels.AcceptFollowRequest(sourceId, targetId)
	return err
}

func (fed *federation) RejectFollowRequest(sourceId, targetId int64) error {
	_, err := fed.rels.RejectFollowRequest(sourceId, targetId)
	return err
}

func (fed *federation) GetFollowingIds(identityId int64) ([]int64, error) {
	return fed.rels.FollowingIds(identityId)
}

func (fed *federation) GetFollowerIds(identityId int64) ([]int64, error) {
	return fed.rels.FollowerIds(identityId)
}

func (fed *federation) GetFollowingRequestIds(identityId int64) ([]int64, error) {
	return fed.rels.FollowingRequestIds(identityId)
}

func (fed *federation) GetRequestedFollowerIds(identityId int64) ([]int64, error) {
	return fed.rels.RequestedFollowerIds(identityId)
}

func (fed *federation) Block(sourceId, targetId int64) error {
	_, err := fed.rels.Block(sourceId, targetId)
	return err
}

func (fed *federation) Unblock(sourceId, targetId int64) error {
	return fed.rels.Unblock(sourceId, targetId)
}

func (fed *federation) Mute(sourceId, targetId int64, duration time.Duration, includeNotifications bool) error {
	_, err := fed.rels.Mute(sourceId, targetId, duration, includeNotifications)
	return err
}

func (fed *federation) Unmute(sourceId, targetId int64) error {
	return fed.rels.Unmute(sourceId, targetId)
}

func (fed *federation) GetMutingIds(identityId int64) ([]int64, error) {
	return fed.rels.MutingIds(identityId)
}

func (fed *federation) GetBlockingIds(identityId int64) ([]int64, error) {
	return fed.rels.BlockingIds(identityId)
}

func (fed *federation) GetRejectingIds(identityId int64) ([]int64, error) {
	return fed.rels.RejectingIds(identityId)
}

func (fed *federation) Post(
	authorId int64,
	prependContent, content string,
	visibility dal.Visibility,
	typeData json.RawMessage,
	postId int64,
	published *time.Time,
) (*dal.Post, error) {

	if postId != 0 {
		post, err := fed.posts.GetPost(postId)
		if err != nil && !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		if post != nil && post.AuthorId == authorId && !containsState(dal.HiddenPostStates, post.State) {
			return fed.posts.EditLocal(postId, prependContent, content, &EditOptions{
				Visibility: visibility,
				TypeData:   typeData,
			})
		}
	}
	return fed.posts.CreateLocal(authorId, prependContent, content, &PostOptions{
		Visibility: visibility,
		TypeData:   typeData,
		Published:  published,
	})
}

func (fed *federation) Reply(authorId, parentId int64, content string, visibility dal.Visibility) (*dal.Post, error) {
	return fed.posts.CreateLocal(authorId, "", content, &PostOptions{
		Visibility: visibility,
		ReplyTo:    parentId,
	})
}

func (fed *federation) DeletePost(postId int64) error {
	return fed.posts.Delete(postId)
}

func (fed *federation) GetPostUrl(postId int64) (string, error) {
	return fed.posts.GetPostUrl(postId)
}

func (fed *federation) GetPostStats(postId int64) (*dal.PostStats, error) {
	return fed.ledger.GetPostStats(postId)
}

func (fed *federation) LikePost(postId, identityId int64) error {
	_, err := fed.ledger.LikePost(postId, identityId)
	return err
}

func (fed *federation) UnlikePost(postId, identityId int64) error {
	return fed.ledger.UnlikePost(postId, identityId)
}

func (fed *federation) PostLikedBy(postId, identityId int64) (bool, error) {
	return fed.ledger.PostLikedBy(postId, identityId)
}

func (fed *federation) BoostPost(postId, identityId int64) error {
	_, err := fed.ledger.BoostPost(postId, identityId)
	return err
}

func (fed *federation) UnboostPost(postId, identityId int64) error {
	return fed.ledger.UnboostPost(postId, identityId)
}

func (fed *federation) GetEmoji(shortcode, domain string) (*dal.Emoji, error) {
	res, err := fed.emojis.GetByDomain(shortcode, domain)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, shared.ErrNotFound
	}
	return res, nil
}
