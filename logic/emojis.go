package logic

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/shared"
	"sort"
	"strings"
)

type IEmojis interface {
	// FromShortcodes returns the usable local emoji among shortcodes.
	FromShortcodes(tx dal.IRepo, shortcodes []string) ([]*dal.Emoji, error)
	// GetByDomain looks up one emoji; an empty domain means local. Returns nil if there is none.
	GetByDomain(shortcode, domain string) (*dal.Emoji, error)
}

type emojis struct {
	logger shared.ILogger
	repo   dal.IRepo
	cache  ICache
}

func NewEmojis(logger shared.ILogger, repo dal.IRepo, cache ICache) IEmojis {
	return &emojis{logger, repo, cache}
}

// FromShortcodes serves each shortcode from the cache, and reads only the misses from tx.
// Unknown shortcodes are not cached, so a newly added emoji is picked up right away.
func (em *emojis) FromShortcodes(tx dal.IRepo, shortcodes []string) ([]*dal.Emoji, error) {

	var res []*dal.Emoji
	var misses []string
	for _, sc := range shortcodes {
		if e := em.cached(sc, ""); e != nil {
			if e.Local && e.IsUsable() {
				res = append(res, e)
			}
			continue
		}
		misses = append(misses, sc)
	}

	fetched, err := tx.GetLocalEmojis(misses)
	if err != nil {
		return nil, err
	}
	for _, e := range fetched {
		em.store(e)
	}
	res = append(res, fetched...)
	sort.Slice(res, func(i, j int) bool { return res[i].Shortcode < res[j].Shortcode })
	return res, nil
}

func (em *emojis) GetByDomain(shortcode, domain string) (*dal.Emoji, error) {

	domain = strings.ToLower(domain)
	if res := em.cached(shortcode, domain); res != nil {
		return res, nil
	}
	res, err := em.repo.GetEmoji(shortcode, domain)
	if err != nil || res == nil {
		return nil, err
	}
	em.store(res)
	return res, nil
}

func (em *emojis) cached(shortcode, domain string) *dal.Emoji {
	key := cacheKey("emoji", shortcode, domain)
	val, ok := em.cache.Get(key)
	if !ok {
		return nil
	}
	var res dal.Emoji
	if err := json.Unmarshal(val, &res); err != nil {
		em.logger.Warnf("Dropping unreadable cache entry for emoji %s: %v", shortcode, err)
		em.cache.Delete(key)
		return nil
	}
	return &res
}

func (em *emojis) store(e *dal.Emoji) {
	if val, err := json.Marshal(e); err == nil {
		em.cache.Set(cacheKey("emoji", e.Shortcode, e.Domain), val)
	}
}
