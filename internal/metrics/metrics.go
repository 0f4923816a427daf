// Package metrics declares the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connections is the number of live peer connections by role.
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{Name: "warden_connections", Help: "Live peer connections"},
		[]string{"role"})

	// Packets counts dispatched packets by sender and request name.
	Packets = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "warden_packets_total", Help: "Packets dispatched to handlers"},
		[]string{"sender", "request"})

	// Dropped counts packets discarded before reaching a handler.
	Dropped = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "warden_packets_dropped_total", Help: "Packets dropped before dispatch"},
		[]string{"reason"})

	// Failures counts replies carrying Result=Failed by reason.
	Failures = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "warden_request_failures_total", Help: "Failed replies by fail reason"},
		[]string{"reason"})

	// BansIssued counts global bans added through admin commands.
	BansIssued = promauto.NewCounter(
		prometheus.CounterOpts{Name: "warden_global_bans_total", Help: "Global bans issued"})

	// BanNotifications counts NewGlobalBan notifications by send outcome.
	BanNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "warden_ban_notifications_total", Help: "Global ban notifications sent to servers"},
		[]string{"outcome"})

	// SweepRemoved counts entries expired by the sweeper.
	SweepRemoved = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "warden_sweep_removed_total", Help: "Entries removed by the expiry sweep"},
		[]string{"kind"})

	// HTTPRejected counts HTTP requests refused before reaching a handler.
	HTTPRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{Name: "warden_http_rejected_total", Help: "HTTP requests refused by middleware"},
		[]string{"reason"})

	// Listings is the current size of the server directory.
	Listings = promauto.NewGauge(
		prometheus.GaugeOpts{Name: "warden_directory_listings", Help: "Servers listed in the directory"})
)
