package server

import (
	"crypto/subtle"
	"fedi_core/shared"
	"fmt"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"net/http"
	"strings"
)

type metricsHandlerGroup struct {
	cfg     *shared.Config
	logger  shared.ILogger
	scraper http.Handler
}

// Routes promhttp's own failures into our log.
type promErrorLog struct {
	logger shared.ILogger
}

func (pl promErrorLog) Println(v ...interface{}) {
	pl.logger.Warnf("Metrics scrape: %s", strings.TrimSpace(fmt.Sprintln(v...)))
}

func NewMetricsHandlerGroup(cfg *shared.Config, logger shared.ILogger) IHandlerGroup {
	scraper := promhttp.InstrumentMetricHandler(prometheus.DefaultRegisterer,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{
			ErrorLog:      promErrorLog{logger},
			ErrorHandling: promhttp.ContinueOnError,
		}))
	return &metricsHandlerGroup{cfg, logger, scraper}
}

func (hg *metricsHandlerGroup) Prefix() string {
	return "/"
}

func (hg *metricsHandlerGroup) GroupDefs() []handlerDef {
	return []handlerDef{
		{"GET", "/metrics", func(w http.ResponseWriter, r *http.Request) { hg.getMetrics(w, r) }},
	}
}

func (hg *metricsHandlerGroup) AuthMW() func(next http.Handler) http.Handler {
	return hg.bearerAuth
}

// bearerAuth admits scrapers presenting the configured secret. No secret configured means no scraping.
func (hg *metricsHandlerGroup) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret, ok := strings.CutPrefix(r.Header.Get(metricsAuthHeader), "Bearer ")
		expected := hg.cfg.Secrets.MetricsAuth
		if !ok || expected == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(expected)) != 1 {
			hg.logger.Warnf("Metrics scrape from %s with missing or invalid Authorization header", r.RemoteAddr)
			writeErrorResponse(w, badAuthorization, http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (hg *metricsHandlerGroup) getMetrics(w http.ResponseWriter, r *http.Request) {
	hg.logger.Debugf("Handling metrics GET: %s", r.URL.Path)
	hg.scraper.ServeHTTP(w, r)
}
