// Copyright 2024 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package v2

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	multiJoinTickCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "multijoin",
			Name:      "tick_total",
			Help:      "Total number of join ticks by result.",
		}, []string{"result"})
	MultiJoinTickCommitCounter = multiJoinTickCounter.WithLabelValues("commit")
	MultiJoinTickAbortCounter  = multiJoinTickCounter.WithLabelValues("abort")
	MultiJoinTickPoisonCounter = multiJoinTickCounter.WithLabelValues("poison")

	MultiJoinTickDurationHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mo",
			Subsystem: "multijoin",
			Name:      "tick_duration_seconds",
			Help:      "Bucketed histogram of join tick duration.",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20), // 10us to 5s
		})

	MultiJoinRehashCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "multijoin",
			Name:      "rehash_total",
			Help:      "Total number of hash table rehashes.",
		})

	MultiJoinDuplicateKeyCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "multijoin",
			Name:      "duplicate_key_total",
			Help:      "Total number of ticks rejected for a duplicate key.",
		})

	multiJoinSlotDeltaCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "multijoin",
			Name:      "slot_delta_total",
			Help:      "Total number of committed slot events by kind.",
		}, []string{"kind"})
	MultiJoinSlotAddedCounter         = multiJoinSlotDeltaCounter.WithLabelValues("added_slot")
	MultiJoinSlotInputAddedCounter    = multiJoinSlotDeltaCounter.WithLabelValues("input_added")
	MultiJoinSlotInputRemovedCounter  = multiJoinSlotDeltaCounter.WithLabelValues("input_removed")
	MultiJoinSlotInputModifiedCounter = multiJoinSlotDeltaCounter.WithLabelValues("input_modified")
	MultiJoinSlotEmptiedCounter       = multiJoinSlotDeltaCounter.WithLabelValues("slot_emptied")

	MultiJoinLiveSlotsGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "mo",
			Subsystem: "multijoin",
			Name:      "live_slots",
			Help:      "Number of live slots per join.",
		}, []string{"join"})
)

var (
	updateGraphTickCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "updategraph",
			Name:      "tick_total",
			Help:      "Total number of update graph ticks.",
		})

	UpdateGraphListenerErrorCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mo",
			Subsystem: "updategraph",
			Name:      "listener_error_total",
			Help:      "Total number of listener failures.",
		})
)

// UpdateGraphTickCounter counts graph ticks.
func UpdateGraphTickCounter() prometheus.Counter {
	return updateGraphTickCounter
}

func initMultiJoinMetrics() {
	registry.MustRegister(multiJoinTickCounter)
	registry.MustRegister(MultiJoinTickDurationHistogram)
	registry.MustRegister(MultiJoinRehashCounter)
	registry.MustRegister(MultiJoinDuplicateKeyCounter)
	registry.MustRegister(multiJoinSlotDeltaCounter)
	registry.MustRegister(MultiJoinLiveSlotsGauge)
}

func initUpdateGraphMetrics() {
	registry.MustRegister(updateGraphTickCounter)
	registry.MustRegister(UpdateGraphListenerErrorCounter)
}
