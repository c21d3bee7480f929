package dal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fedi_core/shared"
	"strings"
	"time"
)

type PostScope int

const (
	ScopeAll         PostScope = iota
	ScopePublic                // public and local_only
	ScopeLocalPublic           // public and local_only, authored here
	ScopeUnlisted              // public, local_only and unlisted
	ScopeVisibleTo             // unlisted scope, plus followers-only posts of followed authors, mentions, own posts
)

// PostFilter selects posts for ListPosts. Zero values mean "no restriction".
type PostFilter struct {
	Scope          PostScope
	ViewerId       int64 // for ScopeVisibleTo; 0 falls back to ScopeUnlisted
	IncludeReplies bool
	NotHidden      bool
	AuthorId       int64
	Hashtag        string
	InReplyTo      string
	Limit          int
}

const postColumns = `id, author_id, local, object_uri, url, visibility, summary, sensitive, content, in_reply_to,
	hashtags, type_data, stats, state, state_next_attempt, state_locked_until, published, edited, created, updated`

func scanPost(row interface{ Scan(...any) error }) (*Post, error) {
	var res Post
	var objectUri, inReplyTo, typeData sql.NullString
	var hashtags, stats string
	err := row.Scan(&res.Id, &res.AuthorId, &res.Local, &objectUri, &res.Url, &res.Visibility, &res.Summary,
		&res.Sensitive, &res.Content, &inReplyTo, &hashtags, &typeData, &stats, &res.State,
		&res.StateNextAttempt, &res.StateLockedUntil, &res.Published, &res.Edited, &res.Created, &res.Updated)
	if err != nil {
		return nil, err
	}
	res.ObjectUri = objectUri.String
	res.InReplyTo = inReplyTo.String
	res.TypeData = rawFromNull(typeData)
	if err = json.Unmarshal([]byte(hashtags), &res.Hashtags); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(stats), &res.Stats); err != nil {
		return nil, err
	}
	return &res, nil
}

func marshalHashtags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// AddPost inserts p under a new snowflake id. ObjectUri is normally empty at this point.
func (repo *Repo) AddPost(p *Post) error {

	defer repo.lock()()

	now := time.Now().UTC()
	p.Created, p.Updated = now, now
	if p.Published.IsZero() {
		p.Published = now
	}
	statsJson, _ := json.Marshal(p.Stats)
	id, err := insertWithId(shared.IdTypePost, func(id int64) error {
		_, err := repo.q.Exec(`INSERT INTO posts (`+postColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, p.AuthorId, p.Local, nullStr(p.ObjectUri), p.Url, p.Visibility, p.Summary, p.Sensitive, p.Content,
			nullStr(p.InReplyTo), marshalHashtags(p.Hashtags), nullRaw(p.TypeData), string(statsJson), p.State,
			p.StateNextAttempt, p.StateLockedUntil, p.Published, p.Edited, p.Created, p.Updated)
		return err
	})
	if err != nil {
		if isDuplicateKey(err) {
			return shared.ErrConstraintViolation
		}
		return err
	}
	p.Id = id
	return nil
}

// UpdatePost writes every mutable column of p. Stats are left alone: they only change through SetPostStats.
func (repo *Repo) UpdatePost(p *Post) error {

	defer repo.lock()()

	p.Updated = time.Now().UTC()
	_, err := repo.q.Exec(`UPDATE posts SET object_uri=?, url=?, visibility=?, summary=?, sensitive=?, content=?,
		in_reply_to=?, hashtags=?, type_data=?, state=?, state_next_attempt=?, state_locked_until=?, published=?,
		edited=?, updated=? WHERE id=?`,
		nullStr(p.ObjectUri), p.Url, p.Visibility, p.Summary, p.Sensitive, p.Content, nullStr(p.InReplyTo),
		marshalHashtags(p.Hashtags), nullRaw(p.TypeData), p.State, p.StateNextAttempt, p.StateLockedUntil,
		p.Published, p.Edited, p.Updated, p.Id)
	if err != nil && isDuplicateKey(err) {
		return shared.ErrConstraintViolation
	}
	return err
}

func (repo *Repo) queryPost(query string, args ...any) (*Post, error) {
	res, err := scanPost(repo.q.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (repo *Repo) GetPost(id int64) (*Post, error) {

	defer repo.rlock()()

	return repo.queryPost(`SELECT `+postColumns+` FROM posts WHERE id=?`, id)
}

func (repo *Repo) GetPostByObjectUri(objectUri string) (*Post, error) {

	defer repo.rlock()()

	return repo.queryPost(`SELECT `+postColumns+` FROM posts WHERE object_uri=?`, objectUri)
}

func (repo *Repo) ListPosts(filter *PostFilter) ([]*Post, error) {

	defer repo.rlock()()

	var conds []string
	var args []any

	listed := []Visibility{VisibilityPublic, VisibilityLocalOnly, VisibilityUnlisted}
	scope := filter.Scope
	if scope == ScopeVisibleTo && filter.ViewerId == 0 {
		scope = ScopeUnlisted
	}
	switch scope {
	case ScopePublic:
		conds = append(conds, `visibility IN (0, 4)`)
	case ScopeLocalPublic:
		conds = append(conds, `visibility IN (0, 4) AND local=1`)
	case ScopeUnlisted:
		in, vArgs := inClause(listed)
		conds = append(conds, `visibility IN `+in)
		args = append(args, vArgs...)
	case ScopeVisibleTo:
		in, vArgs := inClause(listed)
		conds = append(conds, `(visibility IN `+in+`
			OR (visibility=? AND author_id IN (SELECT target_id FROM follows WHERE source_id=? AND state=?))
			OR id IN (SELECT post_id FROM post_mentions WHERE identity_id=?)
			OR author_id=?)`)
		args = append(args, vArgs...)
		args = append(args, VisibilityFollowers, filter.ViewerId, FollowAccepted, filter.ViewerId, filter.ViewerId)
	}
	if scope != ScopeAll && !filter.IncludeReplies {
		conds = append(conds, `in_reply_to IS NULL`)
	}
	if filter.NotHidden {
		in, sArgs := inClause(HiddenPostStates)
		conds = append(conds, `state NOT IN `+in)
		args = append(args, sArgs...)
	}
	if filter.AuthorId != 0 {
		conds = append(conds, `author_id=?`)
		args = append(args, filter.AuthorId)
	}
	if filter.Hashtag != "" {
		conds = append(conds, `EXISTS (SELECT 1 FROM json_each(posts.hashtags) WHERE json_each.value=?)`)
		args = append(args, filter.Hashtag)
	}
	if filter.InReplyTo != "" {
		conds = append(conds, `in_reply_to=?`)
		args = append(args, filter.InReplyTo)
	}

	query := `SELECT ` + postColumns + ` FROM posts`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY published DESC, id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := repo.q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (repo *Repo) SetPostStats(postId int64, stats PostStats) error {

	defer repo.lock()()

	statsJson, _ := json.Marshal(stats)
	_, err := repo.q.Exec(`UPDATE posts SET stats=? WHERE id=?`, string(statsJson), postId)
	return err
}

func (repo *Repo) SetPostMentions(postId int64, identityIds []int64) error {

	defer repo.lock()()

	return repo.replaceLinks(`post_mentions`, `identity_id`, postId, identityIds)
}

func (repo *Repo) GetPostMentionIds(postId int64) ([]int64, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT identity_id FROM post_mentions WHERE post_id=? ORDER BY identity_id`, postId)
	if err != nil {
		return nil, err
	}
	return scanIds(rows)
}

func (repo *Repo) SetPostEmojis(postId int64, emojiIds []int64) error {

	defer repo.lock()()

	return repo.replaceLinks(`post_emojis`, `emoji_id`, postId, emojiIds)
}

func (repo *Repo) GetPostEmojiIds(postId int64) ([]int64, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT emoji_id FROM post_emojis WHERE post_id=? ORDER BY emoji_id`, postId)
	if err != nil {
		return nil, err
	}
	return scanIds(rows)
}

// Replaces the post's rows in a post_id/<column> link table. Table and column names are never user input.
func (repo *Repo) replaceLinks(table, column string, postId int64, ids []int64) error {
	if _, err := repo.q.Exec(`DELETE FROM `+table+` WHERE post_id=?`, postId); err != nil {
		return err
	}
	for _, id := range ids {
		_, err := repo.q.Exec(`INSERT OR IGNORE INTO `+table+` (post_id, `+column+`) VALUES (?, ?)`, postId, id)
		if err != nil {
			return err
		}
	}
	return nil
}

// CountReplies counts live posts replying to objectUri.
func (repo *Repo) CountReplies(objectUri string) (int, error) {

	defer repo.rlock()()

	in, args := inClause(HiddenPostStates)
	args = append([]any{objectUri}, args...)
	var count int
	row := repo.q.QueryRow(`SELECT COUNT(*) FROM posts WHERE in_reply_to=? AND state NOT IN `+in, args...)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// GetHashtagPostTimes returns publish times of live posts carrying tag, published at or after since.
func (repo *Repo) GetHashtagPostTimes(tag string, since time.Time) ([]time.Time, error) {

	defer repo.rlock()()

	in, args := inClause(HiddenPostStates)
	args = append([]any{tag}, args...)
	rows, err := repo.q.Query(`SELECT published FROM posts
		WHERE EXISTS (SELECT 1 FROM json_each(posts.hashtags) WHERE json_each.value=?)
		AND state NOT IN `+in+` ORDER BY published`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []time.Time
	for rows.Next() {
		var published time.Time
		if err = rows.Scan(&published); err != nil {
			return nil, err
		}
		if !published.Before(since) {
			res = append(res, published)
		}
	}
	return res, rows.Err()
}
