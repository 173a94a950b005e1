// SPDX-License-Identifier: MIT
// SPDX-FileCopyrightText: 2022 mochi-mqtt, mochi-co

package mqttgo

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats holds atomic counters for one session's traffic. Unlike the
// broker's $SYS info this is scoped to a single client connection.
// BytesReceived, MessagesDropped and Inflight are not updated by the
// session and stay zero.
type Stats struct {
	BytesReceived    int64
	BytesSent        int64
	PacketsReceived  int64
	PacketsSent      int64
	MessagesReceived int64
	MessagesSent     int64
	MessagesDropped  int64
	Inflight         int64
	PingsSent        int64
	PongsReceived    int64
	Reconnects       int64
}

// Clone takes an atomic snapshot.
func (s *Stats) Clone() Stats {
	return Stats{
		BytesReceived:    atomic.LoadInt64(&s.BytesReceived),
		BytesSent:        atomic.LoadInt64(&s.BytesSent),
		PacketsReceived:  atomic.LoadInt64(&s.PacketsReceived),
		PacketsSent:      atomic.LoadInt64(&s.PacketsSent),
		MessagesReceived: atomic.LoadInt64(&s.MessagesReceived),
		MessagesSent:     atomic.LoadInt64(&s.MessagesSent),
		MessagesDropped:  atomic.LoadInt64(&s.MessagesDropped),
		Inflight:         atomic.LoadInt64(&s.Inflight),
		PingsSent:        atomic.LoadInt64(&s.PingsSent),
		PongsReceived:    atomic.LoadInt64(&s.PongsReceived),
		Reconnects:       atomic.LoadInt64(&s.Reconnects),
	}
}

// RegisterPrometheusMetrics wires each counter into registry as a counter
// or gauge func. Passing a nil registry uses prometheus.DefaultRegisterer.
// This is entirely optional - a session that never calls this pays no
// prometheus cost beyond the counters it increments anyway.
func (s *Stats) RegisterPrometheusMetrics(clientID string, registry prometheus.Registerer) {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	type metric struct {
		kind  string // "c" counter, "g" gauge
		name  string
		help  string
		value *int64
	}

	metrics := []metric{
		{"c", "mqttgo_bytes_received_total", "Total bytes received on the connection", &s.BytesReceived},
		{"c", "mqttgo_bytes_sent_total", "Total bytes sent on the connection", &s.BytesSent},
		{"c", "mqttgo_packets_received_total", "Total MQTT control packets received", &s.PacketsReceived},
		{"c", "mqttgo_packets_sent_total", "Total MQTT control packets sent", &s.PacketsSent},
		{"c", "mqttgo_messages_received_total", "Total application messages delivered to observers", &s.MessagesReceived},
		{"c", "mqttgo_messages_sent_total", "Total application messages published", &s.MessagesSent},
		{"c", "mqttgo_messages_dropped_total", "Total application messages dropped undelivered", &s.MessagesDropped},
		{"g", "mqttgo_inflight", "Current number of unacknowledged QoS >= 1 messages", &s.Inflight},
		{"c", "mqttgo_pings_sent_total", "Total PINGREQ frames sent", &s.PingsSent},
		{"c", "mqttgo_pongs_received_total", "Total PINGRESP frames received", &s.PongsReceived},
		{"c", "mqttgo_reconnects_total", "Total successful reconnections", &s.Reconnects},
	}

	for _, m := range metrics {
		m := m
		fn := func() float64 { return float64(atomic.LoadInt64(m.value)) }
		labels := prometheus.Labels{"client_id": clientID}

		switch m.kind {
		case "c":
			registry.MustRegister(prometheus.NewCounterFunc(
				prometheus.CounterOpts{Name: m.name, Help: m.help, ConstLabels: labels}, fn))
		case "g":
			registry.MustRegister(prometheus.NewGaugeFunc(
				prometheus.GaugeOpts{Name: m.name, Help: m.help, ConstLabels: labels}, fn))
		}
	}
}
