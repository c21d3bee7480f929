package server

import (
	"encoding/json"
	"errors"
	"fedi_core/dto"
	"fedi_core/logic"
	"fedi_core/shared"
	"fedi_core/texts"
	"github.com/gorilla/mux"
	"net/http"
	"strings"
)

// Groups together the handlers needed for discovery and inbound federation.
type apubHandlerGroup struct {
	cfg     *shared.Config
	logger  shared.ILogger
	metrics logic.IMetrics
	texts   texts.ITexts
	udir    logic.IUserDirectory
	inbox   logic.IInboxQueue
}

func NewApubHandlerGroup(
	cfg *shared.Config,
	logger shared.ILogger,
	metrics logic.IMetrics,
	txt texts.ITexts,
	udir logic.IUserDirectory,
	inbox logic.IInboxQueue,
) IHandlerGroup {
	res := apubHandlerGroup{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		texts:   txt,
		udir:    udir,
		inbox:   inbox,
	}
	return &res
}

func (hg *apubHandlerGroup) Prefix() string {
	return ""
}

func (hg *apubHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"GET", "/.well-known/host-meta", func(w http.ResponseWriter, r *http.Request) { hg.getHostMeta(w, r) }},
		{"GET", "/.well-known/webfinger", func(w http.ResponseWriter, r *http.Request) { hg.getWebfinger(w, r) }},
		{"GET", "/@{user:[^/@]+}@{domain:[^/@]+}", func(w http.ResponseWriter, r *http.Request) { hg.getUser(w, r) }},
		{"POST", "/@{user:[^/@]+}@{domain:[^/@]+}/inbox", func(w http.ResponseWriter, r *http.Request) { hg.postInbox(w, r) }},
		{"POST", "/inbox", func(w http.ResponseWriter, r *http.Request) { hg.postInbox(w, r) }},
	}
}

func (hg *apubHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return emptyMW
}

func acceptsJson(r *http.Request) bool {
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "json")
}

func (hg *apubHandlerGroup) getHostMeta(w http.ResponseWriter, r *http.Request) {

	hg.logger.Infof("Handling host-meta GET: %s", r.URL.Path)
	obs := hg.metrics.StartApubRequestIn("host-meta")
	defer obs.Finish()

	idb := shared.IdBuilder{Host: serviceHost(hg.cfg)}
	xrd := hg.texts.WithVals("host_meta.xml", map[string]string{
		"webfinger_template": idb.WebfingerTemplate(),
	})
	w.Header().Set("Content-Type", contentTypeXrd)
	if _, err := w.Write([]byte(xrd)); err != nil {
		hg.logger.Warnf("Failed to write response: %v", err)
	}
}

func (hg *apubHandlerGroup) getWebfinger(w http.ResponseWriter, r *http.Request) {

	hg.logger.Infof("Handling webfinger GET: %s", r.URL.Path)
	obs := hg.metrics.StartApubRequestIn("webfinger")
	defer obs.Finish()

	resourceParam := r.URL.Query().Get("resource")
	if resourceParam == "" {
		hg.logger.Infof("Webfinger: Missing 'resource' param")
		writeErrorResponse(w, "Missing or invalid 'resource' param", http.StatusBadRequest)
		return
	}

	resp, err := hg.udir.GetWebfinger(resourceParam)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			hg.logger.Infof("Webfinger: No such resource; 'resource' param is '%s'", resourceParam)
		}
		writeLogicError(hg.logger, w, err)
		return
	}

	writeJsonResponse(hg.logger, w, contentTypeJrd, resp)
}

func (hg *apubHandlerGroup) getUser(w http.ResponseWriter, r *http.Request) {

	hg.logger.Infof("Handling user GET: %s", r.URL.Path)
	obs := hg.metrics.StartApubRequestIn("user")
	defer obs.Finish()

	userName := mux.Vars(r)["user"]
	domain := mux.Vars(r)["domain"]

	if !acceptsJson(r) {
		idb := shared.IdBuilder{Host: serviceHost(hg.cfg)}
		profileUrl := idb.ProfileUrl(userName)
		hg.logger.Infof("No application/json in accept header; redirecting to: '%s'", profileUrl)
		http.Redirect(w, r, profileUrl, http.StatusSeeOther)
		return
	}

	userInfo, err := hg.udir.GetUserInfo(userName, domain)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			hg.logger.Infof("Info requested for unknown user: '%s@%s'", userName, domain)
		}
		writeLogicError(hg.logger, w, err)
		return
	}

	writeJsonResponse(hg.logger, w, contentTypeActivity, userInfo)
}

// Inbound payloads are appended to the inbox log verbatim. Signature checks and activity
// processing happen downstream, on the stored copy.
func (hg *apubHandlerGroup) postInbox(w http.ResponseWriter, r *http.Request) {

	hg.logger.Infof("Handling inbox POST: %s", r.URL.Path)
	if mux.Vars(r)["user"] == "" {
		obs := hg.metrics.StartApubRequestIn("inbox")
		defer obs.Finish()
	} else {
		obs := hg.metrics.StartApubRequestIn("user/inbox")
		defer obs.Finish()
	}

	bodyBytes := readBody(hg.logger, w, r, hg.cfg.InboxMaxBytes)
	if bodyBytes == nil {
		return
	}
	if len(bodyBytes) == 0 {
		hg.logger.Info("Empty request body")
		writeErrorResponse(w, "Request body must not be empty", http.StatusBadRequest)
		return
	}

	hg.logger.Debug(string(bodyBytes))

	id, err := hg.inbox.Append(json.RawMessage(bodyBytes))
	if err != nil {
		if errors.Is(err, shared.ErrProtocol) {
			hg.logger.Infof("Invalid JSON in request body: %v", err)
		}
		writeLogicError(hg.logger, w, err)
		return
	}

	writeJsonResponse(hg.logger, w, contentTypeJson, &dto.InboxAppendResp{Id: id})
}
