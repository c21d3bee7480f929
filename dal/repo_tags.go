package dal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

func (repo *Repo) AddHashtagIfNotExist(tag string) (isNew bool, err error) {

	defer repo.lock()()

	var res sql.Result
	res, err = repo.q.Exec(`INSERT OR IGNORE INTO hashtags (hashtag, created) VALUES (?, ?)`, tag, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n == 1, err
}

func (repo *Repo) GetHashtag(tag string) (*Hashtag, error) {

	defer repo.rlock()()

	row := repo.q.QueryRow(`SELECT hashtag, name_override, public, aliases, stats, stats_updated, created
		FROM hashtags WHERE hashtag=?`, tag)
	var res Hashtag
	var aliases, stats string
	err := row.Scan(&res.Hashtag, &res.NameOverride, &res.Public, &aliases, &stats, &res.StatsUpdated, &res.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err = json.Unmarshal([]byte(aliases), &res.Aliases); err != nil {
		return nil, err
	}
	if err = json.Unmarshal([]byte(stats), &res.Stats); err != nil {
		return nil, err
	}
	return &res, nil
}

func (repo *Repo) SetHashtagStats(tag string, stats HashtagStats, when time.Time) error {

	defer repo.lock()()

	statsJson, _ := json.Marshal(stats)
	_, err := repo.q.Exec(`UPDATE hashtags SET stats=?, stats_updated=? WHERE hashtag=?`, string(statsJson), when, tag)
	return err
}

const emojiColumns = `id, shortcode, domain, local, public, mimetype, remote_url, category, created`

func scanEmoji(row interface{ Scan(...any) error }) (*Emoji, error) {
	var res Emoji
	var domain sql.NullString
	err := row.Scan(&res.Id, &res.Shortcode, &domain, &res.Local, &res.Public, &res.MimeType, &res.RemoteUrl,
		&res.Category, &res.Created)
	if err != nil {
		return nil, err
	}
	res.Domain = domain.String
	return &res, nil
}

func (repo *Repo) AddEmojiIfNotExist(e *Emoji) (isNew bool, res *Emoji, err error) {

	defer repo.lock()()

	e.Created = time.Now().UTC()
	var sqlRes sql.Result
	sqlRes, err = repo.q.Exec(`INSERT INTO emojis (shortcode, domain, local, public, mimetype, remote_url, category,
		created) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Shortcode, nullStr(e.Domain), e.Local, e.Public, e.MimeType, e.RemoteUrl, e.Category, e.Created)
	if err == nil {
		e.Id, err = sqlRes.LastInsertId()
		return true, e, err
	}
	if isDuplicateKey(err) {
		res, err = repo.getEmoji(e.Shortcode, e.Domain)
		return false, res, err
	}
	return false, nil, err
}

// GetEmoji looks up by shortcode; an empty domain selects local emoji.
func (repo *Repo) GetEmoji(shortcode, domain string) (*Emoji, error) {

	defer repo.rlock()()

	return repo.getEmoji(shortcode, domain)
}

func (repo *Repo) getEmoji(shortcode, domain string) (*Emoji, error) {
	row := repo.q.QueryRow(`SELECT `+emojiColumns+` FROM emojis WHERE shortcode=? AND ifnull(domain, '')=?`,
		shortcode, domain)
	res, err := scanEmoji(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// GetLocalEmojis returns the local emoji among shortcodes that are public or not reviewed yet.
func (repo *Repo) GetLocalEmojis(shortcodes []string) ([]*Emoji, error) {

	if len(shortcodes) == 0 {
		return nil, nil
	}

	defer repo.rlock()()

	in, args := inClause(shortcodes)
	rows, err := repo.q.Query(`SELECT `+emojiColumns+` FROM emojis
		WHERE local=1 AND (public=1 OR public IS NULL) AND shortcode IN `+in+` ORDER BY shortcode`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Emoji
	for rows.Next() {
		e, err := scanEmoji(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
