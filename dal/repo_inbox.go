package dal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const inboxColumns = `id, message, state, state_changed, created`

func scanInboxMessage(row interface{ Scan(...any) error }) (*InboxMessage, error) {
	var res InboxMessage
	var message string
	if err := row.Scan(&res.Id, &message, &res.State, &res.StateChanged, &res.Created); err != nil {
		return nil, err
	}
	res.Message = json.RawMessage(message)
	return &res, nil
}

// AddInboxMessage stores message verbatim in state received.
func (repo *Repo) AddInboxMessage(message json.RawMessage, when time.Time) (int64, error) {

	defer repo.lock()()

	res, err := repo.q.Exec(`INSERT INTO inbox_messages (message, state, state_changed, created) VALUES (?, ?, ?, ?)`,
		string(message), InboxReceived, when, when)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (repo *Repo) GetInboxMessage(id int64) (*InboxMessage, error) {

	defer repo.rlock()()

	row := repo.q.QueryRow(`SELECT `+inboxColumns+` FROM inbox_messages WHERE id=?`, id)
	res, err := scanInboxMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// GetInboxMessages returns up to limit messages in the given state, oldest first.
func (repo *Repo) GetInboxMessages(state InboxState, limit int) ([]*InboxMessage, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT `+inboxColumns+` FROM inbox_messages WHERE state=? ORDER BY id LIMIT ?`,
		state, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*InboxMessage
	for rows.Next() {
		msg, err := scanInboxMessage(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, msg)
	}
	return res, rows.Err()
}

func (repo *Repo) SetInboxMessageState(id int64, state InboxState) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE inbox_messages SET state=?, state_changed=? WHERE id=?`, state, time.Now().UTC(), id)
	return err
}

func (repo *Repo) CountInboxMessages(state InboxState) (int, error) {

	defer repo.rlock()()

	var count int
	row := repo.q.QueryRow(`SELECT COUNT(*) FROM inbox_messages WHERE state=?`, state)
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
