package dal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

const domainColumns = `domain, service_domain, local, blocked, public, is_default, nodeinfo, notes, created, updated`

func scanDomain(row interface{ Scan(...any) error }) (*Domain, error) {
	var res Domain
	var serviceDomain, nodeInfo sql.NullString
	err := row.Scan(&res.Domain, &serviceDomain, &res.Local, &res.Blocked, &res.Public, &res.IsDefault,
		&nodeInfo, &res.Notes, &res.Created, &res.Updated)
	if err != nil {
		return nil, err
	}
	res.ServiceDomain = serviceDomain.String
	res.NodeInfo = rawFromNull(nodeInfo)
	return &res, nil
}

func (repo *Repo) GetDomain(domain string) (*Domain, error) {

	defer repo.rlock()()

	return repo.getDomain(domain)
}

func (repo *Repo) getDomain(domain string) (*Domain, error) {

	row := repo.q.QueryRow(`SELECT `+domainColumns+` FROM domains WHERE domain=?`, domain)
	res, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

// FindDomain matches on either domain or service_domain, preferring an exact domain match.
func (repo *Repo) FindDomain(domainOrServiceDomain string) (*Domain, error) {

	defer repo.rlock()()

	row := repo.q.QueryRow(`SELECT `+domainColumns+` FROM domains
		WHERE domain=? OR service_domain=?
		ORDER BY domain=? DESC LIMIT 1`,
		domainOrServiceDomain, domainOrServiceDomain, domainOrServiceDomain)
	res, err := scanDomain(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return res, nil
}

func (repo *Repo) AddDomainIfNotExist(d *Domain) (isNew bool, res *Domain, err error) {

	defer repo.lock()()

	now := time.Now().UTC()
	isNew = true
	_, err = repo.q.Exec(`INSERT INTO domains (`+domainColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.Domain, nullStr(d.ServiceDomain), d.Local, d.Blocked, d.Public, d.IsDefault, nullRaw(d.NodeInfo),
		d.Notes, now, now)
	if err == nil {
		res, err = repo.getDomain(d.Domain)
		return
	}
	if isDuplicateKey(err) {
		isNew = false
		res, err = repo.getDomain(d.Domain)
		if err == nil && res == nil {
			// Lost on service_domain, not on domain
			err = ErrServiceDomainTaken
		}
	}
	return
}

var ErrServiceDomainTaken = errors.New("service domain already belongs to another domain")

// GetDomainsForUser returns local domains that are public or granted to the user, default first, then by name.
func (repo *Repo) GetDomainsForUser(userId int64) ([]*Domain, error) {

	defer repo.rlock()()

	rows, err := repo.q.Query(`SELECT `+domainColumns+` FROM domains
		WHERE local=1 AND (public=1 OR domain IN (SELECT domain FROM user_domains WHERE user_id=?))
		ORDER BY is_default DESC, domain ASC`, userId)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []*Domain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (repo *Repo) GrantDomainToUser(userId int64, domain string) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`INSERT OR IGNORE INTO user_domains (user_id, domain) VALUES (?, ?)`, userId, domain)
	return err
}

func (repo *Repo) SetDomainBlocked(domain string, blocked bool) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE domains SET blocked=?, updated=? WHERE domain=?`, blocked, time.Now().UTC(), domain)
	return err
}

func (repo *Repo) SetDomainNodeInfo(domain string, nodeInfo json.RawMessage) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`UPDATE domains SET nodeinfo=?, updated=? WHERE domain=?`,
		nullRaw(nodeInfo), time.Now().UTC(), domain)
	return err
}

func (repo *Repo) UpsertUser(user *User) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`INSERT INTO users (id, email) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET email=excluded.email`, user.Id, user.Email)
	return err
}

func (repo *Repo) LinkUserIdentity(userId, identityId int64) error {

	defer repo.lock()()

	_, err := repo.q.Exec(`INSERT INTO users_identities (user_id, identity_id) VALUES (?, ?)`, userId, identityId)
	if err != nil && isDuplicateKey(err) {
		var ownerId int64
		row := repo.q.QueryRow(`SELECT user_id FROM users_identities WHERE identity_id=?`, identityId)
		if scanErr := row.Scan(&ownerId); scanErr != nil {
			return scanErr
		}
		if ownerId == userId {
			return nil
		}
		return ErrIdentityOwned
	}
	return err
}

var ErrIdentityOwned = errors.New("identity is already linked to a different user")

// GetIdentityIdForUser returns 0 if the user has no identity.
func (repo *Repo) GetIdentityIdForUser(userId int64) (int64, error) {

	defer repo.rlock()()

	var id int64
	row := repo.q.QueryRow(`SELECT identity_id FROM users_identities WHERE user_id=? ORDER BY identity_id LIMIT 1`, userId)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}

// GetUserIdForIdentity returns 0 if no local user owns the identity.
func (repo *Repo) GetUserIdForIdentity(identityId int64) (int64, error) {

	defer repo.rlock()()

	var id int64
	row := repo.q.QueryRow(`SELECT user_id FROM users_identities WHERE identity_id=?`, identityId)
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return id, nil
}
