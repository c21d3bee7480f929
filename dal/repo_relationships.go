package dal

import (
	"database/sql"
	"errors"
	"fedi_core/shared"
	"time"
)

const followColumns = `id, source_id, target_id, uri, note, boosts, state, state_changed, created`

func (repo *Repo) GetFollow(sourceId, targetId int64) (*Follow, error) {

	defer repo.rlock()()

	row := repo.q.QueryRow(`SELECT `+followColumns+` FROM follows WHERE source_id=? AND target_id=?`,
		sourceId, targetId)
	var res Follow
	err := row.Scan(&res.Id, &res.SourceId, &res.TargetId, &res.Uri, &res.Note, &res.Boosts, &res.State,
		&res.StateChanged, &res.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// AddFollow assigns f a new id, and its URI from makeUri(id). A second row for the same ordered pair fails
// with ErrConstraintViolation.
func (repo *Repo) AddFollow(f *Follow, makeUri func(id int64) string) error {

	defer repo.lock()()

	now := time.Now().UTC()
	f.Created, f.StateChanged = now, now
	id, err := insertWithId(shared.IdTypeFollow, func(id int64) error {
		f.Uri = makeUri(id)
		_, err := repo.q.Exec(`INSERT INTO follows (`+followColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, f.SourceId, f.TargetId, f.Uri, f.Note, f.Boosts, f.State, f.StateChanged, f.Created)
		return err
	})
	if err != nil {
		if isDuplicateKey(err) {
			return shared.ErrConstraintViolation
		}
		return err
	}
	f.Id = id
	return nil
}

func (repo *Repo) SetFollowState(id int64, state FollowState) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE follows SET state=?, state_changed=? WHERE id=?`, state, time.Now().UTC(), id)
	return err
}

func (repo *Repo) GetFollowTargetIds(sourceId int64, state FollowState) ([]int64, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT target_id FROM follows WHERE source_id=? AND state=? ORDER BY id`,
		sourceId, state)
	if err != nil {
		return nil, err
	}
	return scanIds(rows)
}

func (repo *Repo) GetFollowSourceIds(targetId int64, state FollowState) ([]int64, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT source_id FROM follows WHERE target_id=? AND state=? ORDER BY id`,
		targetId, state)
	if err != nil {
		return nil, err
	}
	return scanIds(rows)
}

const blockColumns = `id, source_id, target_id, uri, mute, include_notifications, expires, state, state_changed, created`

func (repo *Repo) GetBlock(sourceId, targetId int64, mute bool) (*Block, error) {

	defer repo.rlock()()

	row := repo.q.QueryRow(`SELECT `+blockColumns+` FROM blocks WHERE source_id=? AND target_id=? AND mute=?`,
		sourceId, targetId, mute)
	var res Block
	err := row.Scan(&res.Id, &res.SourceId, &res.TargetId, &res.Uri, &res.Mute, &res.IncludeNotifications,
		&res.Expires, &res.State, &res.StateChanged, &res.Created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// AddBlock inserts b under a sequential id, then mints its URI from makeUri(id).
func (repo *Repo) AddBlock(b *Block, makeUri func(id int64) string) error {

	defer repo.lock()()

	now := time.Now().UTC()
	b.Created, b.StateChanged = now, now
	res, err := repo.q.Exec(`INSERT INTO blocks (source_id, target_id, uri, mute, include_notifications, expires,
		state, state_changed, created) VALUES (?, ?, '', ?, ?, ?, ?, ?, ?)`,
		b.SourceId, b.TargetId, b.Mute, b.IncludeNotifications, b.Expires, b.State, b.StateChanged, b.Created)
	if err != nil {
		if isDuplicateKey(err) {
			return shared.ErrConstraintViolation
		}
		return err
	}
	if b.Id, err = res.LastInsertId(); err != nil {
		return err
	}
	b.Uri = makeUri(b.Id)
	_, err = repo.q.Exec(`UPDATE blocks SET uri=? WHERE id=?`, b.Uri, b.Id)
	return err
}

func (repo *Repo) UpdateBlock(b *Block) error {

	defer repo.lock()()

	b.StateChanged = time.Now().UTC()
	_, err := repo.q.Exec(`UPDATE blocks SET uri=?, include_notifications=?, expires=?, state=?, state_changed=?
		WHERE id=?`, b.Uri, b.IncludeNotifications, b.Expires, b.State, b.StateChanged, b.Id)
	return err
}

func (repo *Repo) SetBlocksState(sourceId, targetId int64, mute bool, state BlockState) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE blocks SET state=?, state_changed=? WHERE source_id=? AND target_id=? AND mute=?`,
		state, time.Now().UTC(), sourceId, targetId, mute)
	return err
}

func (repo *Repo) GetBlockTargetIds(sourceId int64, mute bool, states []BlockState) ([]int64, error) {

	defer repo.rlock()()

	in, args := inClause(states)
	args = append([]any{sourceId, mute}, args...)
	rows, err := repo.q.Query(`SELECT target_id FROM blocks WHERE source_id=? AND mute=? AND state IN `+in+
		` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return scanIds(rows)
}

func (repo *Repo) GetBlockSourceIds(targetId int64, mute bool, states []BlockState) ([]int64, error) {

	defer repo.rlock()()

	in, args := inClause(states)
	args = append([]any{targetId, mute}, args...)
	rows, err := repo.q.Query(`SELECT source_id FROM blocks WHERE target_id=? AND mute=? AND state IN `+in+
		` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	return scanIds(rows)
}
