/*
Package observability turns engine lifecycle hooks into Prometheus metrics
and structured logs.

	metrics, err := observability.NewMetrics(prometheus.DefaultRegisterer)
	hooks := metrics.Hooks().Merge(observability.LoggingHooks(logger))
	engine := chatflow.New(..., chatflow.WithHooks(hooks))
*/
package observability
