// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package metrics holds the prometheus collectors of the messaging core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "comunidade"

var (
	MessagesAppended = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_appended_total",
		Help:      "Messages committed to the store.",
	})

	AppendFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "append_failures_total",
		Help:      "Rejected or failed appends by error kind.",
	}, []string{"kind"})

	EventsPublished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_events_published_total",
		Help:      "New-message events handed to the delivery channel.",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "delivery_publish_failures_total",
		Help:      "Events the delivery channel could not publish.",
	})

	ActiveSubscriptions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "delivery_active_subscriptions",
		Help:      "Open delivery channel subscriptions.",
	})

	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconcile_runs_total",
		Help:      "Reconciliation passes by outcome.",
	}, []string{"outcome"})

	StoreLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "store_call_seconds",
		Help:      "Latency of relational store calls.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})
)
