// Package metrics exports Prometheus collectors for session repositories,
// lifecycle events and expiry sweeps.
//
//	m := metrics.New(prometheus.NewRegistry(), "app")
//	repo := metrics.InstrumentRepository(backend, m)
//	bus.Subscribe(m.EventHandler())
//	mux.Handle("GET /metrics", m.Handler())
package metrics
