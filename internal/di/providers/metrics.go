package providers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/samber/do/v2"

	"github.com/listenupapp/webmention-receiver/internal/metrics"
)

// ProvideRegistry provides the Prometheus registry served on /metrics.
func ProvideRegistry(_ do.Injector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, nil
}

// ProvideMetrics provides the receiver's collectors.
func ProvideMetrics(i do.Injector) (*metrics.Metrics, error) {
	reg := do.MustInvoke[*prometheus.Registry](i)
	return metrics.New(reg), nil
}
