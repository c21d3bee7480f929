package dal

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fedi_core/shared"
	"fmt"
	"github.com/mattn/go-sqlite3"
	"strings"
	"sync"
	"time"
)

const schemaVer = 1

// Attempts at inserting a row under a freshly generated snowflake id.
const idAllocAttempts = 3

//go:embed scripts/*
var scripts embed.FS

type IRepo interface {
	InitUpdateDb()
	RunInTx(fn func(tx IRepo) error) error

	GetDomain(domain string) (*Domain, error)
	FindDomain(domainOrServiceDomain string) (*Domain, error)
	AddDomainIfNotExist(d *Domain) (isNew bool, res *Domain, err error)
	GetDomainsForUser(userId int64) ([]*Domain, error)
	GrantDomainToUser(userId int64, domain string) error
	SetDomainBlocked(domain string, blocked bool) error
	SetDomainNodeInfo(domain string, nodeInfo json.RawMessage) error

	UpsertUser(user *User) error
	LinkUserIdentity(userId, identityId int64) error
	GetIdentityIdForUser(userId int64) (int64, error)
	GetUserIdForIdentity(identityId int64) (int64, error)

	AddIdentityIfNotExist(idn *Identity) (isNew bool, res *Identity, err error)
	GetIdentity(id int64) (*Identity, error)
	GetIdentityByActorUri(actorUri string) (*Identity, error)
	GetIdentityByUsernameAndDomain(username, domain string, localOnly bool) (*Identity, error)
	GetIdentitiesByUsername(username string) ([]*Identity, error)
	SetIdentityKeys(id int64, pubKey, pubKeyId, privKey string) error
	UpdateRemoteIdentity(idn *Identity) error

	GetFollow(sourceId, targetId int64) (*Follow, error)
	AddFollow(f *Follow, makeUri func(id int64) string) error
	SetFollowState(id int64, state FollowState) error
	GetFollowTargetIds(sourceId int64, state FollowState) ([]int64, error)
	GetFollowSourceIds(targetId int64, state FollowState) ([]int64, error)

	GetBlock(sourceId, targetId int64, mute bool) (*Block, error)
	AddBlock(b *Block, makeUri func(id int64) string) error
	UpdateBlock(b *Block) error
	SetBlocksState(sourceId, targetId int64, mute bool, state BlockState) error
	GetBlockTargetIds(sourceId int64, mute bool, states []BlockState) ([]int64, error)
	GetBlockSourceIds(targetId int64, mute bool, states []BlockState) ([]int64, error)

	AddPost(p *Post) error
	UpdatePost(p *Post) error
	GetPost(id int64) (*Post, error)
	GetPostByObjectUri(objectUri string) (*Post, error)
	ListPosts(filter *PostFilter) ([]*Post, error)
	SetPostStats(postId int64, stats PostStats) error
	SetPostMentions(postId int64, identityIds []int64) error
	GetPostMentionIds(postId int64) ([]int64, error)
	SetPostEmojis(postId int64, emojiIds []int64) error
	GetPostEmojiIds(postId int64) ([]int64, error)
	CountReplies(objectUri string) (int, error)
	GetHashtagPostTimes(tag string, since time.Time) ([]time.Time, error)

	GetInteraction(identityId, postId int64, iType InteractionType) (*PostInteraction, error)
	AddInteraction(pi *PostInteraction) error
	SetInteractionState(id int64, state InteractionState) error
	SetInteractionsState(identityId, postId int64, iType InteractionType, state InteractionState) error
	CountInteractions(postId int64, iType InteractionType, states []InteractionState) (int, error)

	AddHashtagIfNotExist(tag string) (isNew bool, err error)
	GetHashtag(tag string) (*Hashtag, error)
	SetHashtagStats(tag string, stats HashtagStats, when time.Time) error

	AddEmojiIfNotExist(e *Emoji) (isNew bool, res *Emoji, err error)
	GetEmoji(shortcode, domain string) (*Emoji, error)
	GetLocalEmojis(shortcodes []string) ([]*Emoji, error)

	AddInboxMessage(message json.RawMessage, when time.Time) (int64, error)
	GetInboxMessage(id int64) (*InboxMessage, error)
	GetInboxMessages(state InboxState, limit int) ([]*InboxMessage, error)
	SetInboxMessageState(id int64, state InboxState) error
	CountInboxMessages(state InboxState) (int, error)
}

// Common surface of *sql.DB and *sql.Tx.
type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

type Repo struct {
	cfg    *shared.Config
	logger shared.ILogger
	db     *sql.DB
	q      querier
	muDb   *sync.RWMutex
	inTx   bool
}

func NewRepo(cfg *shared.Config, logger shared.ILogger) IRepo {

	var err error
	var db *sql.DB

	// https://phiresky.github.io/blog/2020/sqlite-performance-tuning/
	// https://github.com/mattn/go-sqlite3/issues/1022#issuecomment-1067353980
	// _synchronous=1 is "normal"; _txlock=immediate takes the write lock at BEGIN
	cstr := "file:%s?cache=shared&mode=rwc&_journal_mode=WAL&_synchronous=1&_busy_timeout=5000&_foreign_keys=1&_txlock=immediate"
	db, err = sql.Open("sqlite3", fmt.Sprintf(cstr, cfg.DbFile))
	if err != nil {
		logger.Errorf("Failed to open/create DB file: %s: %v", cfg.DbFile, err)
		panic(err)
	}

	repo := Repo{
		cfg:    cfg,
		logger: logger,
		db:     db,
		q:      db,
		muDb:   &sync.RWMutex{},
	}

	return &repo
}

func (repo *Repo) InitUpdateDb() {

	dbVer := 0
	sysParamsExists := false
	var err error
	var rows *sql.Rows

	rows, err = repo.db.Query("SELECT name FROM sqlite_master WHERE type='table' AND name='sys_params'")
	if err != nil {
		repo.logger.Errorf("Failed to check if 'sys_params' table exists: %v", err)
		panic(err)
	}
	for rows.Next() {
		sysParamsExists = true
	}
	_ = rows.Close()
	if !sysParamsExists {
		repo.logger.Printf("Database appears to be empty; current schema version is %d", schemaVer)
	} else {
		row := repo.db.QueryRow("SELECT val FROM sys_params WHERE name='schema_ver'")
		if err = row.Scan(&dbVer); err != nil {
			repo.logger.Errorf("Failed to query schema version: %v", err)
			panic(err)
		}
		repo.logger.Printf("Database is at version %d; current schema version is %d", dbVer, schemaVer)
	}
	for i := dbVer; i < schemaVer; i += 1 {
		nextVer := i + 1
		fn := fmt.Sprintf("scripts/create-%02d.sql", nextVer)
		repo.logger.Printf("Running %s", fn)
		var sqlBytes []byte
		if sqlBytes, err = scripts.ReadFile(fn); err != nil {
			repo.logger.Errorf("Failed to read init script %s: %v", fn, err)
			panic(err)
		}
		sqlStr := string(sqlBytes)
		if _, err = repo.db.Exec(sqlStr); err != nil {
			repo.logger.Errorf("Failed to execute init script %s: %v", fn, err)
			panic(err)
		}
		_, err = repo.db.Exec("UPDATE sys_params SET val=? WHERE name='schema_ver'", nextVer)
		if err != nil {
			repo.logger.Errorf("Failed to update schema_ver to %d: %v", i, err)
			panic(err)
		}
	}
}

// RunInTx runs fn against a repo bound to a single transaction, holding the write lock throughout.
// Nested calls join the outer transaction.
func (repo *Repo) RunInTx(fn func(tx IRepo) error) (err error) {

	if repo.inTx {
		return fn(repo)
	}

	repo.muDb.Lock()
	defer repo.muDb.Unlock()

	var tx *sql.Tx
	if tx, err = repo.db.Begin(); err != nil {
		return err
	}
	txRepo := &Repo{
		cfg:    repo.cfg,
		logger: repo.logger,
		db:     repo.db,
		q:      tx,
		muDb:   repo.muDb,
		inTx:   true,
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(txRepo); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			repo.logger.Warnf("Failed to roll back transaction: %v", rbErr)
		}
		return err
	}
	return tx.Commit()
}

func (repo *Repo) lock() func() {
	if repo.inTx {
		return func() {}
	}
	repo.muDb.Lock()
	return repo.muDb.Unlock
}

func (repo *Repo) rlock() func() {
	if repo.inTx {
		return func() {}
	}
	repo.muDb.RLock()
	return repo.muDb.RUnlock
}

// Unique or primary key violation: sqlite3 error code 19 (constraint), extended 2067 (unique) or 1555 (PK).
func isDuplicateKey(err error) bool {
	// MySQL: mysql.MySQLError; mysqlErr.Number == 1062
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == 19 && (sqliteErr.ExtendedCode == 2067 || sqliteErr.ExtendedCode == 1555)
	}
	return false
}

func isPrimaryKeyCollision(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == 19 && sqliteErr.ExtendedCode == 1555
	}
	return false
}

// insertWithId runs insert under freshly generated snowflake ids until it does not collide on the
// primary key. Any other error, including other unique violations, is returned as is.
func insertWithId(tag shared.IdType, insert func(id int64) error) (id int64, err error) {
	for i := 0; i < idAllocAttempts; i++ {
		id = shared.GenerateId(tag)
		if err = insert(id); err == nil || !isPrimaryKeyCollision(err) {
			return
		}
	}
	return
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullRaw(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func rawFromNull(ns sql.NullString) json.RawMessage {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	return json.RawMessage(ns.String)
}

// Placeholders and args for an IN clause.
func inClause[T any](vals []T) (string, []any) {
	marks := make([]string, len(vals))
	args := make([]any, len(vals))
	for i, v := range vals {
		marks[i] = "?"
		args[i] = v
	}
	return "(" + strings.Join(marks, ",") + ")", args
}

func scanIds(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	res := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}
