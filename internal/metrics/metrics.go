package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/fedepagnotta/lottery-server/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus counters
var (
	SessionsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sessions_accepted_total",
		Help: "Total TCP connections accepted.",
	})
	BetsStored = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bets_stored_total",
		Help: "Total individual bets persisted.",
	})
	BatchesReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bet_batches_received_total",
		Help: "Total NEW_BETS batches accepted and stored.",
	})
	BatchesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bet_batches_failed_total",
		Help: "Total NEW_BETS batches rejected by the storage collaborator.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "malformed_frames_total",
		Help: "Total frames rejected for protocol violations (invalid length, body, or opcode).",
	})
	AgenciesFinished = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "agencies_finished",
		Help: "Number of distinct agencies that have signaled FINISHED so far.",
	})
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "active_sessions",
		Help: "Current number of open client connections.",
	})
	RaffleRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "raffle_runs_total",
		Help: "Total raffle computations executed (must never exceed 1 per process lifetime).",
	})
	WinnersSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "winners_sent_total",
		Help: "Total WINNERS frames delivered to agencies.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality)
const (
	ErrConnRead  = "conn_read"
	ErrConnWrite = "conn_write"
	ErrFraming   = "framing"
	ErrStorage   = "storage"
	ErrRaffle    = "raffle"
	ErrAccept    = "accept"
)

// StartHTTP serves Prometheus metrics at /metrics on a fresh mux.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters for easy logging (avoid scraping Prometheus in-process)
var (
	localSessions  uint64
	localBetsOK    uint64
	localBatchesOK uint64
	localBatchFail uint64
	localMalformed uint64
	localErrors    uint64
	localRaffles   uint64
	localWinners   uint64
)

// Snapshot is a cheap copy of local counters.
type Snapshot struct {
	SessionsAccepted uint64
	BetsStored       uint64
	BatchesReceived  uint64
	BatchesFailed    uint64
	Malformed        uint64
	Errors           uint64
	RaffleRuns       uint64
	WinnersSent      uint64
}

func Snap() Snapshot {
	return Snapshot{
		SessionsAccepted: atomic.LoadUint64(&localSessions),
		BetsStored:       atomic.LoadUint64(&localBetsOK),
		BatchesReceived:  atomic.LoadUint64(&localBatchesOK),
		BatchesFailed:    atomic.LoadUint64(&localBatchFail),
		Malformed:        atomic.LoadUint64(&localMalformed),
		Errors:           atomic.LoadUint64(&localErrors),
		RaffleRuns:       atomic.LoadUint64(&localRaffles),
		WinnersSent:      atomic.LoadUint64(&localWinners),
	}
}

// Wrapper helpers to keep call sites simple.
func IncSessionsAccepted() {
	SessionsAccepted.Inc()
	atomic.AddUint64(&localSessions, 1)
}

func AddBetsStored(n int) {
	BetsStored.Add(float64(n))
	atomic.AddUint64(&localBetsOK, uint64(n))
}

func IncBatchReceived() {
	BatchesReceived.Inc()
	atomic.AddUint64(&localBatchesOK, 1)
}

func IncBatchFailed() {
	BatchesFailed.Inc()
	atomic.AddUint64(&localBatchFail, 1)
}

func IncMalformed() {
	MalformedFrames.Inc()
	atomic.AddUint64(&localMalformed, 1)
}

func SetAgenciesFinished(n int) { AgenciesFinished.Set(float64(n)) }

func SetActiveSessions(n int) { ActiveSessions.Set(float64(n)) }

func IncRaffleRun() {
	RaffleRuns.Inc()
	atomic.AddUint64(&localRaffles, 1)
}

func IncWinnersSent() {
	WinnersSent.Inc()
	atomic.AddUint64(&localWinners, 1)
}

func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge (should be called once at startup).
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrConnRead, ErrConnWrite, ErrFraming, ErrStorage, ErrRaffle, ErrAccept} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
