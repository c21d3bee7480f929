package shared

import (
	"fmt"
	"net/http"
)

const userAgentTemplate = "fedi_core/%s (+https://%s)"

// Version is stamped at link time: -ldflags "-X fedi_core/shared.Version=1.2.3"
var Version = "dev"

type IUserAgent interface {
	AddUserAgent(req *http.Request)
}

type userAgent struct {
	userAgentValue string
}

func NewUserAgent(cfg *Config) IUserAgent {
	return &userAgent{
		userAgentValue: fmt.Sprintf(userAgentTemplate, Version, cfg.SiteDomain),
	}
}

func (ua *userAgent) AddUserAgent(req *http.Request) {
	req.Header.Set("User-Agent", ua.userAgentValue)
}
