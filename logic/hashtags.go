package logic

import (
	"fedi_core/dal"
	"fedi_core/shared"
	"sort"
	"time"
)

type IHashtags interface {
	// Ensure creates the rows of tags that do not exist yet.
	Ensure(tx dal.IRepo, tags []string) error
	Get(tag string) (*dal.Hashtag, error)
	RefreshStats(tag string) (*dal.Hashtag, error)
	UsageMonths(tag string, num int) ([]PeriodCount, error)
	UsageDays(tag string, num int) ([]PeriodCount, error)
}

// PeriodCount is post usage in one calendar period: "2024-05" or "2024-05-17".
type PeriodCount struct {
	Period string
	Count  int
}

const (
	monthLayout = "2006-01"
	dayLayout   = "2006-01-02"
	// Daily stats only cover this many recent days; monthly stats cover all time.
	statsDays = 60
)

type hashtags struct {
	logger shared.ILogger
	repo   dal.IRepo
}

func NewHashtags(logger shared.ILogger, repo dal.IRepo) IHashtags {
	return &hashtags{logger, repo}
}

func (ht *hashtags) Ensure(tx dal.IRepo, tags []string) error {
	for _, tag := range tags {
		tag = shared.NormalizeHashtag(tag)
		if tag == "" {
			continue
		}
		isNew, err := tx.AddHashtagIfNotExist(tag)
		if err != nil {
			return err
		}
		if isNew {
			ht.logger.Debugf("New hashtag #%s", tag)
		}
	}
	return nil
}

func (ht *hashtags) Get(tag string) (*dal.Hashtag, error) {
	res, err := ht.repo.GetHashtag(shared.NormalizeHashtag(tag))
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, shared.ErrNotFound
	}
	return res, nil
}

// RefreshStats recounts the live posts carrying tag, by month and by day.
func (ht *hashtags) RefreshStats(tag string) (*dal.Hashtag, error) {

	tag = shared.NormalizeHashtag(tag)
	now := time.Now().UTC()
	dayCutoff := now.AddDate(0, 0, -statsDays)

	var res *dal.Hashtag
	err := ht.repo.RunInTx(func(tx dal.IRepo) error {
		times, err := tx.GetHashtagPostTimes(tag, time.Time{})
		if err != nil {
			return err
		}
		stats := dal.HashtagStats{Months: map[string]int{}, Days: map[string]int{}, Total: len(times)}
		for _, t := range times {
			t = t.UTC()
			stats.Months[t.Format(monthLayout)]++
			if !t.Before(dayCutoff) {
				stats.Days[t.Format(dayLayout)]++
			}
		}
		if _, err = tx.AddHashtagIfNotExist(tag); err != nil {
			return err
		}
		if err = tx.SetHashtagStats(tag, stats, now); err != nil {
			return err
		}
		res, err = tx.GetHashtag(tag)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (ht *hashtags) UsageMonths(tag string, num int) ([]PeriodCount, error) {
	h, err := ht.Get(tag)
	if err != nil {
		return nil, err
	}
	return mostRecent(h.Stats.Months, num), nil
}

func (ht *hashtags) UsageDays(tag string, num int) ([]PeriodCount, error) {
	h, err := ht.Get(tag)
	if err != nil {
		return nil, err
	}
	return mostRecent(h.Stats.Days, num), nil
}

// mostRecent returns up to num periods, newest first. Period keys sort chronologically as strings.
func mostRecent(counts map[string]int, num int) []PeriodCount {
	res := make([]PeriodCount, 0, len(counts))
	for period, count := range counts {
		res = append(res, PeriodCount{period, count})
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Period > res[j].Period })
	if len(res) > num {
		res = res[:num]
	}
	return res
}
