package server

import (
	"encoding/json"
	"fedi_core/dal"
	"fedi_core/dto"
	"fedi_core/logic"
	"fedi_core/shared"
	"net/http"
)

// Endpoints for trusted callers on the same deployment, authenticated by API key.
type apiHandlerGroup struct {
	cfg    *shared.Config
	logger shared.ILogger
	inbox  logic.IInboxQueue
}

type inboxCountsResp struct {
	Received  int `json:"received"`
	Processed int `json:"processed"`
	Failed    int `json:"failed"`
}

func NewApiHandlerGroup(
	cfg *shared.Config,
	logger shared.ILogger,
	inbox logic.IInboxQueue,
) IHandlerGroup {
	res := apiHandlerGroup{
		cfg:    cfg,
		logger: logger,
		inbox:  inbox,
	}
	return &res
}

func (hg *apiHandlerGroup) Prefix() string {
	return "/api"
}

func (hg *apiHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"POST", "/internal", func(w http.ResponseWriter, r *http.Request) { hg.postInternal(w, r) }},
		{"GET", "/inbox/counts", func(w http.ResponseWriter, r *http.Request) { hg.getInboxCounts(w, r) }},
	}
}

func (hg *apiHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return hg.authMW(next)
	}
}

func (hg *apiHandlerGroup) authMW(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var apiKey = r.Header.Get(apiKeyHeader)
		found := false
		for _, key := range hg.cfg.Secrets.ApiKeys {
			if apiKey != "" && apiKey == key {
				found = true
			}
		}
		if !found {
			keyPart := apiKey
			if len(apiKey) > 4 {
				keyPart = apiKey[:4] + "..."
			}
			hg.logger.Warnf("API request with missing or invalid key '%s': %s", keyPart, r.URL.Path)
			writeErrorResponse(w, badApiKeyStr, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Wraps the posted JSON object in an internal envelope and appends it to the inbox.
func (hg *apiHandlerGroup) postInternal(w http.ResponseWriter, r *http.Request) {

	hg.logger.Info("POST /api/internal: Request received")

	bodyBytes := readBody(hg.logger, w, r, hg.cfg.InboxMaxBytes)
	if bodyBytes == nil {
		return
	}
	var payload any
	if err := json.Unmarshal(bodyBytes, &payload); err != nil {
		hg.logger.Infof("Invalid JSON in request body: %v", err)
		writeErrorResponse(w, "Request body is not valid JSON", http.StatusBadRequest)
		return
	}

	id, err := hg.inbox.AppendInternal(payload)
	if err != nil {
		writeLogicError(hg.logger, w, err)
		return
	}
	writeJsonResponse(hg.logger, w, contentTypeJson, &dto.InboxAppendResp{Id: id})
}

func (hg *apiHandlerGroup) getInboxCounts(w http.ResponseWriter, r *http.Request) {

	var resp inboxCountsResp
	var err error
	counts := []struct {
		state dal.InboxState
		dest  *int
	}{
		{dal.InboxReceived, &resp.Received},
		{dal.InboxProcessed, &resp.Processed},
		{dal.InboxFailed, &resp.Failed},
	}
	for _, c := range counts {
		if *c.dest, err = hg.inbox.Count(c.state); err != nil {
			writeLogicError(hg.logger, w, err)
			return
		}
	}
	writeJsonResponse(hg.logger, w, contentTypeJson, &resp)
}
