// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "selfstore"

// Metrics holds the client's collectors. A nil *Metrics is valid and
// records nothing, so components can take one unconditionally.
type Metrics struct {
	ChunksUploaded    prometheus.Counter
	ChunksSkipped     prometheus.Counter
	UploadRetries     prometheus.Counter
	PaymentRejections prometheus.Counter
	ChunksFetched     prometheus.Counter
	FetchRetries      prometheus.Counter
	CorruptChunks     prometheus.Counter
	ChunkPutSeconds   prometheus.Histogram
}

// New registers the collectors with registerer, or with the default
// registerer when nil. Registering twice on one registerer panics.
func New(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		ChunksUploaded:    counter("chunks_uploaded_total", "Encrypted chunks written to the chunk store."),
		ChunksSkipped:     counter("chunks_skipped_total", "Chunks not uploaded because the store already held them."),
		UploadRetries:     counter("upload_retries_total", "Chunk puts retried after a transient failure."),
		PaymentRejections: counter("payment_rejections_total", "Uploads abandoned because the store rejected the payment proof."),
		ChunksFetched:     counter("chunks_fetched_total", "Chunks fetched and verified during reconstruction."),
		FetchRetries:      counter("fetch_retries_total", "Chunk fetches retried after a transient failure."),
		CorruptChunks:     counter("corrupt_chunks_total", "Fetched chunks that failed verification."),
		ChunkPutSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_put_seconds",
			Help:      "Latency of one successful chunk put, including retries.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
}

func (m *Metrics) AddUploaded(n int) {
	if m != nil {
		m.ChunksUploaded.Add(float64(n))
	}
}

func (m *Metrics) AddSkipped(n int) {
	if m != nil {
		m.ChunksSkipped.Add(float64(n))
	}
}

func (m *Metrics) UploadRetry() {
	if m != nil {
		m.UploadRetries.Inc()
	}
}

func (m *Metrics) PaymentRejected() {
	if m != nil {
		m.PaymentRejections.Inc()
	}
}

func (m *Metrics) Fetched() {
	if m != nil {
		m.ChunksFetched.Inc()
	}
}

func (m *Metrics) FetchRetry() {
	if m != nil {
		m.FetchRetries.Inc()
	}
}

func (m *Metrics) Corrupt() {
	if m != nil {
		m.CorruptChunks.Inc()
	}
}

// ObservePut records the duration of one chunk put.
func (m *Metrics) ObservePut(elapsed time.Duration) {
	if m != nil {
		m.ChunkPutSeconds.Observe(elapsed.Seconds())
	}
}
