package dal

import (
	"database/sql"
	"errors"
	"fedi_core/shared"
	"time"
)

const interactionColumns = `id, identity_id, post_id, type, object_uri, value, state, created, published`

// GetInteraction returns the single row for the (identity, post, type) triple, or nil.
func (repo *Repo) GetInteraction(identityId, postId int64, iType InteractionType) (*PostInteraction, error) {

	defer repo.rlock()()

	row := repo.q.QueryRow(`SELECT `+interactionColumns+` FROM post_interactions
		WHERE identity_id=? AND post_id=? AND type=?`, identityId, postId, iType)
	var res PostInteraction
	var objectUri, value sql.NullString
	err := row.Scan(&res.Id, &res.IdentityId, &res.PostId, &res.Type, &objectUri, &value, &res.State,
		&res.Created, &res.Published)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	res.ObjectUri = objectUri.String
	res.Value = value.String
	return &res, nil
}

func (repo *Repo) AddInteraction(pi *PostInteraction) error {

	defer repo.lock()()

	now := time.Now().UTC()
	pi.Created, pi.Published = now, now
	id, err := insertWithId(shared.IdTypePostInteraction, func(id int64) error {
		_, err := repo.q.Exec(`INSERT INTO post_interactions (`+interactionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, pi.IdentityId, pi.PostId, pi.Type, nullStr(pi.ObjectUri), nullStr(pi.Value), pi.State,
			pi.Created, pi.Published)
		return err
	})
	if err != nil {
		if isDuplicateKey(err) {
			return shared.ErrConstraintViolation
		}
		return err
	}
	pi.Id = id
	return nil
}

func (repo *Repo) SetInteractionState(id int64, state InteractionState) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE post_interactions SET state=? WHERE id=?`, state, id)
	return err
}

func (repo *Repo) SetInteractionsState(identityId, postId int64, iType InteractionType, state InteractionState) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE post_interactions SET state=? WHERE identity_id=? AND post_id=? AND type=?`,
		state, identityId, postId, iType)
	return err
}

func (repo *Repo) CountInteractions(postId int64, iType InteractionType, states []InteractionState) (int, error) {

	defer repo.rlock()()

	in, args := inClause(states)
	args = append([]any{postId, iType}, args...)
	var count int
	row := repo.q.QueryRow(`SELECT COUNT(*) FROM post_interactions WHERE post_id=? AND type=? AND state IN `+in,
		args...)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
