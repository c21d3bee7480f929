package server

import (
	"encoding/json"
	"errors"
	"fedi_core/shared"
	"fmt"
	"io"
	"net/http"
)

const (
	apiKeyHeader      = "X-API-KEY"
	metricsAuthHeader = "Authorization"
	rootPlacholder    = "*root*"
	internalErrorStr  = "500 Internal Server Error"
	badRequestStr     = "400 Invalid Request"
	notFoundStr       = "404 Not Found"
	tooLargeStr       = "413 Request Body Too Large"
	badApiKeyStr      = "401 Missing or Invalid API Key"
	badAuthorization  = "401 Missing or Invalid Authorization"
)

const (
	contentTypeJson     = "application/json"
	contentTypeJrd      = "application/jrd+json"
	contentTypeActivity = "application/activity+json"
	contentTypeXrd      = "application/xrd+xml"
)

// Defines a single HTTP handler (endpoint)
type handlerDef struct {
	method  string
	pattern string
	handler func(http.ResponseWriter, *http.Request)
}

// IHandlerGroup groups together multiple HTTP handler definitions.
type IHandlerGroup interface {
	Prefix() string
	GroupDefs() []handlerDef
	AuthMW() func(next http.Handler) http.Handler
}

func emptyMW(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
	})
}

// Returns the JSON serialized object as the response body; handles errors.
func writeJsonResponse(logger shared.ILogger, w http.ResponseWriter, contentType string, resp interface{}) {
	w.Header().Set("Content-Type", contentType)
	var err error
	var respJson []byte
	if respJson, err = json.Marshal(resp); err != nil {
		logger.Warnf("Failed to serialize response: %v\n", err)
		http.Error(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
	if _, err = fmt.Fprintln(w, string(respJson)); err != nil {
		logger.Warnf("Failed to write response: %v\n", err)
		http.Error(w, internalErrorStr, http.StatusInternalServerError)
		return
	}
}

type errorResp struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

func writeErrorResponse(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", contentTypeJson)
	resp := errorResp{msg, code}
	respJson, _ := json.Marshal(resp)
	http.Error(w, string(respJson), code)
}

// Maps a logic-layer error to a response. Unknown errors are logged and reported as 500.
func writeLogicError(logger shared.ILogger, w http.ResponseWriter, err error) {
	var precondition *shared.PreconditionError
	switch {
	case errors.Is(err, shared.ErrNotFound):
		writeErrorResponse(w, notFoundStr, http.StatusNotFound)
	case errors.Is(err, shared.ErrInvalidHandle), errors.Is(err, shared.ErrInvalidIdentifier),
		errors.Is(err, shared.ErrProtocol), errors.As(err, &precondition):
		writeErrorResponse(w, err.Error(), http.StatusBadRequest)
	default:
		logger.Errorf("Unexpected error: %v", err)
		writeErrorResponse(w, internalErrorStr, http.StatusInternalServerError)
	}
}

// Reads at most maxBytes of the request body. Returns nil after writing an error response.
func readBody(logger shared.ILogger, w http.ResponseWriter, r *http.Request, maxBytes int64) []byte {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warnf("Request body exceeds %d bytes: %s", maxBytes, r.URL.Path)
			writeErrorResponse(w, tooLargeStr, http.StatusRequestEntityTooLarge)
			return nil
		}
		logger.Warnf("Failed to read request body: %v", err)
		writeErrorResponse(w, badRequestStr, http.StatusBadRequest)
		return nil
	}
	return body
}

// The host under which local objects are served.
func serviceHost(cfg *shared.Config) string {
	if cfg.SiteServiceDomain != "" {
		return cfg.SiteServiceDomain
	}
	return cfg.SiteDomain
}
