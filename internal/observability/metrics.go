// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/gatekeep/gatekeep/internal/auth"
)

// Metrics holds the Gatekeep Prometheus collectors. It implements
// auth.Recorder.
type Metrics struct {
	FlowsTotal       *prometheus.CounterVec
	TokensIssued     *prometheus.CounterVec
	TokenRedemptions *prometheus.CounterVec
	RequestsTotal    *prometheus.CounterVec
}

var _ auth.Recorder = (*Metrics)(nil)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FlowsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_auth_flows_total",
				Help: "Authentication flows by flow and outcome",
			},
			[]string{"flow", "outcome"},
		),
		TokensIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_tokens_issued_total",
				Help: "Redeemable tokens issued by purpose",
			},
			[]string{"purpose"},
		),
		TokenRedemptions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_token_redemptions_total",
				Help: "Redemption attempts by purpose and result",
			},
			[]string{"purpose", "result"},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gatekeep_http_requests_total",
				Help: "HTTP requests by route and status",
			},
			[]string{"route", "status"},
		),
	}

	reg.MustRegister(m.FlowsTotal, m.TokensIssued, m.TokenRedemptions, m.RequestsTotal)
	return m
}

// FlowCompleted implements auth.Recorder.
func (m *Metrics) FlowCompleted(flow, outcome string) {
	m.FlowsTotal.WithLabelValues(flow, outcome).Inc()
}

// TokenIssued implements auth.Recorder.
func (m *Metrics) TokenIssued(purpose string) {
	m.TokensIssued.WithLabelValues(purpose).Inc()
}

// TokenRedeemed implements auth.Recorder.
func (m *Metrics) TokenRedeemed(purpose, result string) {
	m.TokenRedemptions.WithLabelValues(purpose, result).Inc()
}

// RequestServed counts one HTTP request.
func (m *Metrics) RequestServed(route string, status int) {
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}
