package logic

import (
	"fedi_core/shared"
	"github.com/prometheus/client_golang/prometheus"
	"time"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../test/mocks/mock_metrics.go -package mocks fedi_core/logic IMetrics,IRequestObserver

type IMetrics interface {
	StartApubRequestIn(label string) IRequestObserver
	StartApubRequestOut(label string) IRequestObserver
	HandleResolved(outcome string)
	InteractionToggled(iType string, on bool)
	PostSaved(kind string)
	InboxAppended(kind string)
	InboxQueueLength(length int)
	ServiceStarted()
}

type IRequestObserver interface {
	Finish()
}

// Outcomes reported to HandleResolved.
const (
	resolveKnown    = "known"
	resolveCache    = "cache"
	resolveFetched  = "fetched"
	resolveNotFound = "not_found"
	resolveError    = "error"
)

type metrics struct {
	cfg                 *shared.Config
	apubRequestsIn      *prometheus.HistogramVec
	apubRequestsOut     *prometheus.HistogramVec
	handlesResolved     *prometheus.CounterVec
	interactionsToggled *prometheus.CounterVec
	postsSaved          *prometheus.CounterVec
	inboxAppended       *prometheus.CounterVec
	inboxQueueLength    prometheus.Gauge
	serviceStarted      prometheus.Counter
}

func NewMetrics(cfg *shared.Config) IMetrics {

	res := metrics{}
	res.cfg = cfg

	res.apubRequestsIn = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "apub_requests_in_duration",
		Help: "Duration in seconds of federation requests served.",
	}, []string{"label"})
	prometheus.Register(res.apubRequestsIn)

	res.apubRequestsOut = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name: "apub_requests_out_duration",
		Help: "Duration in seconds of discovery and actor requests made.",
	}, []string{"label"})
	prometheus.Register(res.apubRequestsOut)

	res.handlesResolved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "handles_resolved",
		Help: "Handle resolutions by outcome",
	}, []string{"outcome"})
	prometheus.Register(res.handlesResolved)

	res.interactionsToggled = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "interactions_toggled",
		Help: "Interaction toggles by type and direction",
	}, []string{"type", "direction"})
	prometheus.Register(res.interactionsToggled)

	res.postsSaved = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "local_posts_saved",
		Help: "Local posts created, edited or deleted",
	}, []string{"kind"})
	prometheus.Register(res.postsSaved)

	res.inboxAppended = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inbox_messages_appended",
		Help: "Messages appended to the inbox queue",
	}, []string{"kind"})
	prometheus.Register(res.inboxAppended)

	res.inboxQueueLength = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inbox_queue_length",
		Help: "Inbox messages waiting to be processed",
	})
	prometheus.Register(res.inboxQueueLength)

	res.serviceStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "service_started",
		Help: "Service has started up",
	})
	prometheus.Register(res.serviceStarted)

	return &res
}

type requestObserver struct {
	label string
	start time.Time
	hgvec *prometheus.HistogramVec
}

func (ro *requestObserver) Finish() {
	now := time.Now()
	elapsed := float64(now.UnixMilli()-ro.start.UnixMilli()) / 1000.0
	ro.hgvec.WithLabelValues(ro.label).Observe(elapsed)
}

func (m *metrics) StartApubRequestIn(label string) IRequestObserver {
	return &requestObserver{label, time.Now(), m.apubRequestsIn}
}

func (m *metrics) StartApubRequestOut(label string) IRequestObserver {
	return &requestObserver{label, time.Now(), m.apubRequestsOut}
}

func (m *metrics) HandleResolved(outcome string) {
	m.handlesResolved.WithLabelValues(outcome).Add(1)
}

func (m *metrics) InteractionToggled(iType string, on bool) {
	direction := "off"
	if on {
		direction = "on"
	}
	m.interactionsToggled.WithLabelValues(iType, direction).Add(1)
}

func (m *metrics) PostSaved(kind string) {
	m.postsSaved.WithLabelValues(kind).Add(1)
}

func (m *metrics) InboxAppended(kind string) {
	m.inboxAppended.WithLabelValues(kind).Add(1)
}

func (m *metrics) InboxQueueLength(length int) {
	m.inboxQueueLength.Set(float64(length))
}

func (m *metrics) ServiceStarted() {
	m.serviceStarted.Add(1)
}
