package dal

import (
	"encoding/json"
	"time"
)

type Domain struct {
	Domain        string // neodb.social
	ServiceDomain string // empty unless the actor URIs live on a different host
	Local         bool
	Blocked       bool
	Public        bool
	IsDefault     bool
	NodeInfo      json.RawMessage // raw nodeinfo document, remote-origin
	Notes         string
	Created       time.Time
	Updated       time.Time
}

// UriDomain is the host that actor and object URIs of this domain are minted on.
func (d *Domain) UriDomain() string {
	if d.ServiceDomain != "" {
		return d.ServiceDomain
	}
	return d.Domain
}

type User struct {
	Id    int64
	Email string // "@username" for accounts mirrored from the host application
}

type IdentityState string

const (
	IdentityOutdated IdentityState = "outdated"
	IdentityUpdated  IdentityState = "updated"
)

type Restriction int

const (
	RestrictionNone    Restriction = 0
	RestrictionLimited Restriction = 1
	RestrictionBlocked Restriction = 2
)

type Identity struct {
	Id                        int64
	ActorUri                  string // https://remote.example/users/bob
	Username                  string
	Domain                    string // empty for identities known only by actor URI
	Name                      string
	Summary                   string
	Local                     bool
	Discoverable              bool
	State                     IdentityState
	Restriction               Restriction
	PublicKey                 string
	PublicKeyId               string
	PrivateKey                string
	InboxUri                  string
	SharedInboxUri            string
	ProfileUri                string
	ManuallyApprovesFollowers bool
	Fetched                   *time.Time
	Created                   time.Time
	Deleted                   *time.Time
}

func (idn *Identity) Handle() string {
	if idn.Domain == "" {
		return idn.Username
	}
	return idn.Username + "@" + idn.Domain
}

type FollowState string

const (
	FollowUnrequested     FollowState = "unrequested"
	FollowPendingApproval FollowState = "pending_approval"
	FollowAccepted        FollowState = "accepted"
	FollowAccepting       FollowState = "accepting"
	FollowRejecting       FollowState = "rejecting"
	FollowUndone          FollowState = "undone"
)

type Follow struct {
	Id           int64
	SourceId     int64
	TargetId     int64
	Uri          string
	Note         string
	Boosts       bool
	State        FollowState
	StateChanged time.Time
	Created      time.Time
}

type BlockState string

const (
	BlockNew            BlockState = "new"
	BlockSent           BlockState = "sent"
	BlockAwaitingExpiry BlockState = "awaiting_expiry"
	BlockUndone         BlockState = "undone"
)

// ActiveBlockStates are the states in which a block or mute is in force.
var ActiveBlockStates = []BlockState{BlockNew, BlockSent, BlockAwaitingExpiry}

func (s BlockState) IsActive() bool {
	for _, a := range ActiveBlockStates {
		if s == a {
			return true
		}
	}
	return false
}

type Block struct {
	Id                   int64
	SourceId             int64
	TargetId             int64
	Uri                  string
	Mute                 bool
	IncludeNotifications bool
	Expires              *time.Time
	State                BlockState
	StateChanged         time.Time
	Created              time.Time
}

type Visibility int

const (
	VisibilityPublic    Visibility = 0
	VisibilityUnlisted  Visibility = 1
	VisibilityFollowers Visibility = 2
	VisibilityMentioned Visibility = 3
	VisibilityLocalOnly Visibility = 4
)

type PostState string

const (
	PostNew              PostState = "new"
	PostFannedOut        PostState = "fanned_out"
	PostEdited           PostState = "edited"
	PostEditedFannedOut  PostState = "edited_fanned_out"
	PostDeleted          PostState = "deleted"
	PostDeletedFannedOut PostState = "deleted_fanned_out"
)

// HiddenPostStates are excluded from every listing and from reply counts.
var HiddenPostStates = []PostState{PostDeleted, PostDeletedFannedOut}

// PostStats is derived from interactions and replies, never edited by hand.
type PostStats struct {
	Likes   int `json:"likes"`
	Boosts  int `json:"boosts"`
	Replies int `json:"replies"`
}

type Post struct {
	Id               int64
	AuthorId         int64
	Local            bool
	ObjectUri        string // empty until the post's first save
	Url              string
	Visibility       Visibility
	Summary          string
	Sensitive        bool
	Content          string
	InReplyTo        string // object URI; threads may span servers so this is not a foreign key
	Hashtags         []string
	TypeData         json.RawMessage
	Stats            PostStats
	State            PostState
	StateNextAttempt *time.Time
	StateLockedUntil *time.Time
	Published        time.Time
	Edited           *time.Time
	Created          time.Time
	Updated          time.Time
}

type InteractionType string

const (
	InteractionLike  InteractionType = "like"
	InteractionBoost InteractionType = "boost"
	InteractionVote  InteractionType = "vote"
	InteractionPin   InteractionType = "pin"
)

type InteractionState string

const (
	InteractionNew       InteractionState = "new"
	InteractionFannedOut InteractionState = "fanned_out"
	InteractionUndone    InteractionState = "undone"
)

// LiveInteractionStates count towards post stats.
var LiveInteractionStates = []InteractionState{InteractionNew, InteractionFannedOut}

type PostInteraction struct {
	Id         int64
	IdentityId int64
	PostId     int64
	Type       InteractionType
	ObjectUri  string
	Value      string
	State      InteractionState
	Created    time.Time
	Published  time.Time
}

// HashtagStats maps "YYYY-MM" and "YYYY-MM-DD" periods to post counts.
type HashtagStats struct {
	Months map[string]int `json:"months"`
	Days   map[string]int `json:"days"`
	Total  int            `json:"total"`
}

type Hashtag struct {
	Hashtag      string // lowercase, no '#'
	NameOverride string
	Public       *bool
	Aliases      []string
	Stats        HashtagStats
	StatsUpdated *time.Time
	Created      time.Time
}

type Emoji struct {
	Id        int64
	Shortcode string
	Domain    string // empty for local emoji
	Local     bool
	Public    *bool // nil: not reviewed yet
	MimeType  string
	RemoteUrl string
	Category  string
	Created   time.Time
}

// IsUsable: public, or not reviewed yet.
func (e *Emoji) IsUsable() bool {
	return e.Public == nil || *e.Public
}

type InboxState string

const (
	InboxReceived  InboxState = "received"
	InboxProcessed InboxState = "processed"
	InboxFailed    InboxState = "failed"
)

type InboxMessage struct {
	Id           int64
	Message      json.RawMessage
	State        InboxState
	StateChanged time.Time
	Created      time.Time
}
