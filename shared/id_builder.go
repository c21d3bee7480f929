package shared

import (
	"fmt"
	"strconv"
	"strings"
)

const ActivityPublic = "https://www.w3.org/ns/activitystreams#Public"

// IdBuilder makes the URIs of locally owned objects. Host is the uri_domain of the owning Domain.
type IdBuilder struct {
	Host string
}

func (idb *IdBuilder) SiteUrl() string {
	return fmt.Sprintf("https://%s", idb.Host)
}

func (idb *IdBuilder) SharedInbox() string {
	return fmt.Sprintf("https://%s/inbox/", idb.Host)
}

// ActorUrl is the actor URI of a local identity. The handle's own domain is kept in the path
// so that identities of different local domains served from one host never collide.
func (idb *IdBuilder) ActorUrl(username, domain string) string {
	return fmt.Sprintf("https://%s/@%s@%s/", idb.Host, username, domain)
}

func (idb *IdBuilder) ProfileUrl(username string) string {
	return fmt.Sprintf("https://%s/@%s/", idb.Host, username)
}

func (idb *IdBuilder) PostUrl(username string, id int64) string {
	idStr := strconv.FormatInt(id, 10)
	return fmt.Sprintf("https://%s/@%s/posts/%s/", idb.Host, username, idStr)
}

func (idb *IdBuilder) WebfingerTemplate() string {
	return fmt.Sprintf("https://%s/.well-known/webfinger?resource={uri}", idb.Host)
}

// The following build URIs relative to an actor URI, which always ends in a slash.

func ActorInbox(actorUri string) string {
	return ensureSlash(actorUri) + "inbox/"
}

func ActorKeyId(actorUri string) string {
	return ensureSlash(actorUri) + "#main-key"
}

func FollowUri(actorUri string, id int64) string {
	return ensureSlash(actorUri) + "follow/" + strconv.FormatInt(id, 10) + "/"
}

func BlockUri(actorUri string, id int64) string {
	return ensureSlash(actorUri) + "block/" + strconv.FormatInt(id, 10) + "/"
}

func PostObjectUri(actorUri string, id int64) string {
	return ensureSlash(actorUri) + "posts/" + strconv.FormatInt(id, 10) + "/"
}

func ensureSlash(uri string) string {
	if strings.HasSuffix(uri, "/") {
		return uri
	}
	return uri + "/"
}
