package shared

import (
	"fmt"
	"net/url"
	"strings"
)

const HashtagMaxLength = 100

func GetHostName(userUrl string) (string, error) {
	var parsedUrl *url.URL
	var urlError error
	parsedUrl, urlError = url.Parse(userUrl)
	if urlError != nil {
		return "", fmt.Errorf("Failed to parse user URL '%s': %v", userUrl, urlError)
	}
	return parsedUrl.Hostname(), nil
}

func MakeFullMoniker(hostName, handle string) string {
	return "@" + handle + "@" + hostName
}

// ParseHandle splits "user@domain" (an "acct:" prefix is tolerated) into a username and a lowercased domain.
// A leading '@' on the username is an error: callers must strip display formatting first.
func ParseHandle(handle string) (username, domain string, err error) {
	handle = strings.TrimPrefix(handle, "acct:")
	if strings.HasPrefix(handle, "@") {
		return "", "", fmt.Errorf("%w: username must not start with '@': %s", ErrInvalidHandle, handle)
	}
	parts := strings.SplitN(handle, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" || strings.Contains(parts[1], "@") {
		return "", "", fmt.Errorf("%w: %s", ErrInvalidHandle, handle)
	}
	return parts[0], strings.ToLower(parts[1]), nil
}

// NormalizeHashtag lowercases, strips a leading '#', and truncates to HashtagMaxLength characters.
func NormalizeHashtag(tag string) string {
	tag = strings.ToLower(strings.TrimPrefix(tag, "#"))
	return TruncateRunes(tag, HashtagMaxLength)
}

func TruncateRunes(text string, maxLen int) string {
	n := 0
	for i := range text {
		if n == maxLen {
			return text[:i]
		}
		n++
	}
	return text
}
