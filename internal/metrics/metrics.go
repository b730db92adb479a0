// Package metrics предоставляет метрики Prometheus для рассылок и сверки реестра.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"telegram-relay-bot/internal/domain"
)

var (
	once sync.Once

	deliveries        *prometheus.CounterVec
	deliveryDuration  prometheus.Observer
	fanOuts           *prometheus.CounterVec
	membershipChanges *prometheus.CounterVec
	updatesDropped    prometheus.Counter
	authorizedChats   prometheus.Gauge
	knownChats        prometheus.Gauge
	reconcileDuration prometheus.Observer
)

// Init регистрирует метрики в реестре по умолчанию (идемпотентно).
// До вызова Init все функции записи ничего не делают.
func Init() {
	once.Do(func() {
		deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_deliveries_total",
			Help: "Number of per-destination forward attempts by result",
		}, []string{"result"})
		deliveryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_delivery_duration_seconds",
			Help:    "Duration of a single forward call",
			Buckets: prometheus.DefBuckets,
		})
		fanOuts = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_fanouts_total",
			Help: "Number of broadcast attempts by status",
		}, []string{"status"})
		membershipChanges = promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_membership_changes_total",
			Help: "Number of applied membership change events by action",
		}, []string{"action"})
		updatesDropped = promauto.NewCounter(prometheus.CounterOpts{
			Name: "relay_updates_dropped_total",
			Help: "Number of redelivered webhook updates dropped",
		})
		authorizedChats = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_authorized_chats",
			Help: "Current number of authorized destination chats",
		})
		knownChats = promauto.NewGauge(prometheus.GaugeOpts{
			Name: "relay_known_chats",
			Help: "Current number of known chats",
		})
		reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "relay_full_reconcile_duration_seconds",
			Help:    "Duration of the startup reconciliation",
			Buckets: prometheus.DefBuckets,
		})
	})
}

// ObserveDelivery учитывает одну попытку отправки.
func ObserveDelivery(delivered bool, d time.Duration) {
	if deliveries == nil {
		return
	}
	result := "delivered"
	if !delivered {
		result = "failed"
	}
	deliveries.WithLabelValues(result).Inc()
	deliveryDuration.Observe(d.Seconds())
}

// ObserveFanOut учитывает итог рассылки.
func ObserveFanOut(status domain.FanOutStatus) {
	if fanOuts == nil {
		return
	}
	fanOuts.WithLabelValues(string(status)).Inc()
}

// ObserveMembershipChange учитывает примененное событие членства.
func ObserveMembershipChange(action string) {
	if membershipChanges == nil {
		return
	}
	membershipChanges.WithLabelValues(action).Inc()
}

// ObserveDroppedUpdate учитывает отброшенный повтор обновления.
func ObserveDroppedUpdate() {
	if updatesDropped == nil {
		return
	}
	updatesDropped.Inc()
}

// ObserveReconcile учитывает длительность полной сверки.
func ObserveReconcile(d time.Duration) {
	if reconcileDuration == nil {
		return
	}
	reconcileDuration.Observe(d.Seconds())
}

// SetRegistrySize обновляет размеры реестра.
func SetRegistrySize(known, authorized int) {
	if knownChats == nil {
		return
	}
	knownChats.Set(float64(known))
	authorizedChats.Set(float64(authorized))
}
