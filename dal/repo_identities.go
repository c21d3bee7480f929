package dal

import (
	"database/sql"
	"errors"
	"fedi_core/shared"
	"time"
)

const identityColumns = `id, actor_uri, username, domain, name, summary, local, discoverable, state, restriction,
	public_key, public_key_id, private_key, inbox_uri, shared_inbox_uri, profile_uri, manually_approves_followers,
	fetched, created, deleted`

func scanIdentity(row interface{ Scan(...any) error }) (*Identity, error) {
	var res Identity
	var username, domain sql.NullString
	err := row.Scan(&res.Id, &res.ActorUri, &username, &domain, &res.Name, &res.Summary, &res.Local,
		&res.Discoverable, &res.State, &res.Restriction, &res.PublicKey, &res.PublicKeyId, &res.PrivateKey,
		&res.InboxUri, &res.SharedInboxUri, &res.ProfileUri, &res.ManuallyApprovesFollowers,
		&res.Fetched, &res.Created, &res.Deleted)
	if err != nil {
		return nil, err
	}
	res.Username = username.String
	res.Domain = domain.String
	return &res, nil
}

func (repo *Repo) queryIdentity(query string, args ...any) (*Identity, error) {
	res, err := scanIdentity(repo.q.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// AddIdentityIfNotExist inserts idn under a new snowflake id. If another row already holds the actor URI
// or the (username, domain) pair, that row is returned with isNew=false.
func (repo *Repo) AddIdentityIfNotExist(idn *Identity) (isNew bool, res *Identity, err error) {

	defer repo.lock()()

	if idn.Created.IsZero() {
		idn.Created = time.Now().UTC()
	}
	var id int64
	id, err = insertWithId(shared.IdTypeIdentity, func(id int64) error {
		_, err := repo.q.Exec(`INSERT INTO identities (`+identityColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, idn.ActorUri, nullStr(idn.Username), nullStr(idn.Domain), idn.Name, idn.Summary, idn.Local,
			idn.Discoverable, idn.State, idn.Restriction, idn.PublicKey, idn.PublicKeyId, idn.PrivateKey,
			idn.InboxUri, idn.SharedInboxUri, idn.ProfileUri, idn.ManuallyApprovesFollowers,
			idn.Fetched, idn.Created, idn.Deleted)
		return err
	})
	if err == nil {
		idn.Id = id
		return true, idn, nil
	}
	if !isDuplicateKey(err) {
		return false, nil, err
	}
	// Someone else won the race: read their row
	res, err = repo.queryIdentity(`SELECT `+identityColumns+` FROM identities WHERE actor_uri=?`, idn.ActorUri)
	if err == nil && res == nil && idn.Username != "" && idn.Domain != "" {
		res, err = repo.queryIdentity(`SELECT `+identityColumns+` FROM identities
			WHERE lower(username)=lower(?) AND domain=?`, idn.Username, idn.Domain)
	}
	if err == nil && res == nil {
		err = shared.ErrConstraintViolation
	}
	return false, res, err
}

func (repo *Repo) GetIdentity(id int64) (*Identity, error) {

	defer repo.rlock()()

	return repo.queryIdentity(`SELECT `+identityColumns+` FROM identities WHERE id=?`, id)
}

func (repo *Repo) GetIdentityByActorUri(actorUri string) (*Identity, error) {

	defer repo.rlock()()

	return repo.queryIdentity(`SELECT `+identityColumns+` FROM identities WHERE actor_uri=?`, actorUri)
}

// GetIdentityByUsernameAndDomain matches the username case-insensitively. Domain is expected lowercased.
func (repo *Repo) GetIdentityByUsernameAndDomain(username, domain string, localOnly bool) (*Identity, error) {

	defer repo.rlock()()

	query := `SELECT ` + identityColumns + ` FROM identities WHERE lower(username)=lower(?) AND domain=?`
	if localOnly {
		query += ` AND local=1`
	}
	return repo.queryIdentity(query, username, domain)
}

func (repo *Repo) SetIdentityKeys(id int64, pubKey, pubKeyId, privKey string) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE identities SET public_key=?, public_key_id=?, private_key=? WHERE id=?`,
		pubKey, pubKeyId, privKey, id)
	return err
}

// UpdateRemoteIdentity stores freshly fetched actor data. Local rows are never touched.
func (repo *Repo) UpdateRemoteIdentity(idn *Identity) error {

	defer repo.lock()()

	res, err := repo.q.Exec(`UPDATE identities SET name=?, summary=?, discoverable=?, state=?, public_key=?,
		public_key_id=?, inbox_uri=?, shared_inbox_uri=?, profile_uri=?, manually_approves_followers=?, fetched=?
		WHERE id=? AND local=0`,
		idn.Name, idn.Summary, idn.Discoverable, idn.State, idn.PublicKey, idn.PublicKeyId, idn.InboxUri,
		idn.SharedInboxUri, idn.ProfileUri, idn.ManuallyApprovesFollowers, idn.Fetched, idn.Id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GetIdentitiesByUsername returns every known identity with the username, on any domain, oldest first.
func (repo *Repo) GetIdentitiesByUsername(username string) ([]*Identity, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT `+identityColumns+` FROM identities WHERE lower(username)=lower(?) ORDER BY id`,
		username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Identity
	for rows.Next() {
		idn, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, idn)
	}
	return res, rows.Err()
}
