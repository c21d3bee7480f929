package logic

import (
	"encoding/json"
	"errors"
	"fedi_core/dal"
	"fedi_core/shared"
	"sort"
	"strings"
	"time"
)

type IPostLifecycle interface {
	CreateLocal(authorId int64, prependContent, content string, opts *PostOptions) (*dal.Post, error)
	EditLocal(postId int64, prependContent, content string, opts *EditOptions) (*dal.Post, error)
	Delete(postId int64) error
	CalculateStats(postId int64) (*dal.PostStats, error)
	GetPost(postId int64) (*dal.Post, error)
	GetPostUrl(postId int64) (string, error)
	GetMentionIds(postId int64) ([]int64, error)
	ListPosts(filter *dal.PostFilter) ([]*dal.Post, error)
}

type PostOptions struct {
	Summary    string
	Sensitive  bool
	Visibility dal.Visibility
	ReplyTo    int64 // id of the parent post, or 0
	TypeData   json.RawMessage
	Published  *time.Time // backdating; ignored if in the future
}

type EditOptions struct {
	Summary    string
	Sensitive  *bool // nil: sensitive iff there is a summary
	Visibility dal.Visibility
	TypeData   json.RawMessage // kept unchanged if empty
}

// Backdated posts older than this are stored as already fanned out, so followers are not flooded.
const backdateQuietAge = 48 * time.Hour

type postLifecycle struct {
	logger    shared.ILogger
	repo      dal.IRepo
	metrics   IMetrics
	extractor IContentExtractor
	resolver  IIdentityResolver
	emojis    IEmojis
	hashtags  IHashtags
}

func NewPostLifecycle(
	logger shared.ILogger,
	repo dal.IRepo,
	metrics IMetrics,
	extractor IContentExtractor,
	resolver IIdentityResolver,
	emojis IEmojis,
	hashtags IHashtags,
) IPostLifecycle {
	return &postLifecycle{logger, repo, metrics, extractor, resolver, emojis, hashtags}
}

func (pl *postLifecycle) getLocalAuthor(authorId int64) (*dal.Identity, *dal.Domain, error) {
	author, err := pl.repo.GetIdentity(authorId)
	if err != nil {
		return nil, nil, err
	}
	if author == nil {
		return nil, nil, shared.ErrNotFound
	}
	if !author.Local {
		return nil, nil, shared.NewPreconditionError("identity %d is not local", authorId)
	}
	domain, err := pl.repo.GetDomain(author.Domain)
	if err != nil {
		return nil, nil, err
	}
	if domain == nil {
		return nil, nil, shared.ErrNotFound
	}
	return author, domain, nil
}

// resolveMentions may hit the network: it must run outside of any transaction.
// Handles without a domain are looked up on the author's domain first, then among known identities
// if exactly one carries the username. Unresolvable handles are dropped.
func (pl *postLifecycle) resolveMentions(handles []string, author *dal.Identity) []int64 {
	var res []int64
	for _, handle := range handles {
		handle = strings.ToLower(handle)
		username, domain := handle, author.Domain
		bare := true
		if ix := strings.IndexByte(handle, '@'); ix != -1 {
			username, domain, bare = handle[:ix], handle[ix+1:], false
		}
		idn, err := pl.resolver.ByUsernameAndDomain(username, domain, true, false)
		if bare && errors.Is(err, shared.ErrNotFound) {
			idn, err = pl.knownByUsername(username)
		}
		if err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				pl.logger.Infof("Dropping mention of %s: %v", handle, err)
			}
			continue
		}
		res = append(res, idn.Id)
	}
	return res
}

func (pl *postLifecycle) knownByUsername(username string) (*dal.Identity, error) {
	known, err := pl.repo.GetIdentitiesByUsername(username)
	if err != nil {
		return nil, err
	}
	if len(known) != 1 {
		return nil, shared.ErrNotFound
	}
	return known[0], nil
}

// renderContent puts prependContent at the start of the first paragraph of sanitized html.
func (pl *postLifecycle) renderContent(prependContent, html string) string {
	if prependContent == "" {
		return html
	}
	if strings.Contains(html, "<p>") {
		return strings.Replace(html, "<p>", "<p>"+prependContent, 1)
	}
	return "<p>" + prependContent + "</p>" + html
}

func (pl *postLifecycle) CreateLocal(authorId int64, prependContent, content string, opts *PostOptions) (*dal.Post, error) {

	if opts == nil {
		opts = &PostOptions{}
	}
	author, domain, err := pl.getLocalAuthor(authorId)
	if err != nil {
		return nil, err
	}
	html := pl.extractor.Sanitize(content)
	ext := pl.extractor.Extract(html)
	mentionIds := pl.resolveMentions(ext.Mentions, author)
	idb := shared.IdBuilder{Host: domain.UriDomain()}

	post := &dal.Post{
		AuthorId:   author.Id,
		Local:      true,
		Visibility: opts.Visibility,
		Summary:    opts.Summary,
		Sensitive:  opts.Summary != "" || opts.Sensitive,
		Content:    pl.renderContent(prependContent, html),
		Hashtags:   ext.Hashtags,
		TypeData:   opts.TypeData,
		State:      dal.PostNew,
	}
	now := time.Now().UTC()
	if opts.Published != nil && opts.Published.Before(now) {
		post.Published = opts.Published.UTC()
		if now.Sub(post.Published) > backdateQuietAge {
			post.State = dal.PostFannedOut
		}
	}

	err = pl.repo.RunInTx(func(tx dal.IRepo) error {

		var parent *dal.Post
		if opts.ReplyTo != 0 {
			if parent, err = tx.GetPost(opts.ReplyTo); err != nil {
				return err
			}
			if parent == nil {
				return shared.ErrNotFound
			}
			post.InReplyTo = parent.ObjectUri
			mentionIds = append(mentionIds, parent.AuthorId)
			if parent.Visibility == dal.VisibilityLocalOnly {
				post.Visibility = dal.VisibilityLocalOnly
			}
		}

		emojis, err := pl.emojis.FromShortcodes(tx, ext.Emojis)
		if err != nil {
			return err
		}

		if err = tx.AddPost(post); err != nil {
			return err
		}
		post.ObjectUri = shared.PostObjectUri(author.ActorUri, post.Id)
		post.Url = idb.PostUrl(author.Username, post.Id)
		if err = tx.UpdatePost(post); err != nil {
			return err
		}
		if err = pl.saveDerived(tx, post, mentionIds, emojis); err != nil {
			return err
		}
		if parent != nil {
			if _, err = calculateStats(tx, parent); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	pl.metrics.PostSaved("created")
	return post, nil
}

func (pl *postLifecycle) saveDerived(tx dal.IRepo, post *dal.Post, mentionIds []int64, emojis []*dal.Emoji) error {
	if err := tx.SetPostMentions(post.Id, uniqueIds(mentionIds)); err != nil {
		return err
	}
	emojiIds := make([]int64, 0, len(emojis))
	for _, e := range emojis {
		emojiIds = append(emojiIds, e.Id)
	}
	if err := tx.SetPostEmojis(post.Id, emojiIds); err != nil {
		return err
	}
	return pl.hashtags.Ensure(tx, post.Hashtags)
}

func (pl *postLifecycle) EditLocal(postId int64, prependContent, content string, opts *EditOptions) (*dal.Post, error) {

	if opts == nil {
		opts = &EditOptions{}
	}
	post, err := pl.GetPost(postId)
	if err != nil {
		return nil, err
	}
	if !post.Local {
		return nil, shared.NewPreconditionError("post %d is not local", postId)
	}
	author, _, err := pl.getLocalAuthor(post.AuthorId)
	if err != nil {
		return nil, err
	}
	html := pl.extractor.Sanitize(content)
	ext := pl.extractor.Extract(html)
	mentionIds := pl.resolveMentions(ext.Mentions, author)
	rendered := pl.renderContent(prependContent, html)

	err = pl.repo.RunInTx(func(tx dal.IRepo) error {

		if post, err = tx.GetPost(postId); err != nil {
			return err
		}
		if post == nil || containsState(dal.HiddenPostStates, post.State) {
			return shared.ErrNotFound
		}

		post.Content = rendered
		post.Hashtags = ext.Hashtags
		post.Summary = opts.Summary
		post.Sensitive = opts.Summary != ""
		if opts.Sensitive != nil {
			post.Sensitive = *opts.Sensitive
		}
		post.Visibility = opts.Visibility
		if len(opts.TypeData) > 0 {
			post.TypeData = opts.TypeData
		}
		if post.InReplyTo != "" {
			parent, err := tx.GetPostByObjectUri(post.InReplyTo)
			if err != nil {
				return err
			}
			if parent != nil {
				mentionIds = append(mentionIds, parent.AuthorId)
				if parent.Visibility == dal.VisibilityLocalOnly {
					post.Visibility = dal.VisibilityLocalOnly
				}
			}
		}
		now := time.Now().UTC()
		post.Edited = &now
		post.State = dal.PostEdited
		post.StateNextAttempt = nil
		post.StateLockedUntil = nil

		emojis, err := pl.emojis.FromShortcodes(tx, ext.Emojis)
		if err != nil {
			return err
		}
		if err = tx.UpdatePost(post); err != nil {
			return err
		}
		return pl.saveDerived(tx, post, mentionIds, emojis)
	})
	if err != nil {
		return nil, err
	}

	pl.metrics.PostSaved("edited")
	return post, nil
}

// Delete marks the post deleted; the row stays so the scheduler can fan out the deletion.
func (pl *postLifecycle) Delete(postId int64) error {

	err := pl.repo.RunInTx(func(tx dal.IRepo) error {
		post, err := tx.GetPost(postId)
		if err != nil {
			return err
		}
		if post == nil {
			return shared.ErrNotFound
		}
		if containsState(dal.HiddenPostStates, post.State) {
			return nil
		}
		post.State = dal.PostDeleted
		post.StateNextAttempt = nil
		post.StateLockedUntil = nil
		if err = tx.UpdatePost(post); err != nil {
			return err
		}
		if post.InReplyTo == "" {
			return nil
		}
		parent, err := tx.GetPostByObjectUri(post.InReplyTo)
		if err != nil || parent == nil {
			return err
		}
		_, err = calculateStats(tx, parent)
		return err
	})
	if err != nil {
		return err
	}

	pl.metrics.PostSaved("deleted")
	return nil
}

func (pl *postLifecycle) CalculateStats(postId int64) (*dal.PostStats, error) {
	var res dal.PostStats
	err := pl.repo.RunInTx(func(tx dal.IRepo) error {
		post, err := tx.GetPost(postId)
		if err != nil {
			return err
		}
		if post == nil {
			return shared.ErrNotFound
		}
		res, err = calculateStats(tx, post)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// calculateStats recounts live likes, boosts and replies of post, and stores the result on it.
func calculateStats(tx dal.IRepo, post *dal.Post) (dal.PostStats, error) {
	var stats dal.PostStats
	var err error
	if stats.Likes, err = tx.CountInteractions(post.Id, dal.InteractionLike, dal.LiveInteractionStates); err != nil {
		return stats, err
	}
	if stats.Boosts, err = tx.CountInteractions(post.Id, dal.InteractionBoost, dal.LiveInteractionStates); err != nil {
		return stats, err
	}
	if post.ObjectUri != "" {
		if stats.Replies, err = tx.CountReplies(post.ObjectUri); err != nil {
			return stats, err
		}
	}
	if err = tx.SetPostStats(post.Id, stats); err != nil {
		return stats, err
	}
	post.Stats = stats
	return stats, nil
}

func (pl *postLifecycle) GetPost(postId int64) (*dal.Post, error) {
	post, err := pl.repo.GetPost(postId)
	if err != nil {
		return nil, err
	}
	if post == nil {
		return nil, shared.ErrNotFound
	}
	return post, nil
}

// GetPostUrl returns the post's canonical object URI.
func (pl *postLifecycle) GetPostUrl(postId int64) (string, error) {
	post, err := pl.GetPost(postId)
	if err != nil {
		return "", err
	}
	return post.ObjectUri, nil
}

func (pl *postLifecycle) GetMentionIds(postId int64) ([]int64, error) {
	return pl.repo.GetPostMentionIds(postId)
}

func (pl *postLifecycle) ListPosts(filter *dal.PostFilter) ([]*dal.Post, error) {
	if filter == nil {
		filter = &dal.PostFilter{}
	}
	return pl.repo.ListPosts(filter)
}

func uniqueIds(ids []int64) []int64 {
	res := make([]int64, 0, len(ids))
	seen := map[int64]bool{}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			res = append(res, id)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i] < res[j] })
	return res
}
