package authority

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics counts the authority's money-moving operations.
type Metrics struct {
	BetsPlaced    prometheus.Counter
	RoundsSettled prometheus.Counter
	Cashouts      prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		BetsPlaced: promauto.NewCounter(prometheus.CounterOpts{
			Name: "croupier_bets_placed_total",
			Help: "Accepted wagers.",
		}),
		RoundsSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "croupier_rounds_settled_total",
			Help: "Rounds settled and revealed.",
		}),
		Cashouts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "croupier_cashouts_total",
			Help: "Crash stakes cashed out before the crash point.",
		}),
	}
}

// ServeMetrics exposes /metrics and /healthz on their own port, away from
// the public game surface.
func ServeMetrics(port string, log *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("metrics listening", zap.String("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", zap.Error(err))
		}
	}()
}
