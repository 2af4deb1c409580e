package metricsfx

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/yurykabanov/securevault/pkg/backup"
	"github.com/yurykabanov/securevault/pkg/http/handler"
	"github.com/yurykabanov/securevault/pkg/metrics"
)

func Registry() *prometheus.Registry {
	reg := prometheus.NewRegistry()

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

func Collector(reg *prometheus.Registry) (*metrics.Collector, backup.RunObserver, error) {
	c := metrics.NewCollector()

	if err := c.Register(reg); err != nil {
		return nil, nil, err
	}

	return c, c, nil
}

func RegisterHandlers(
	router *mux.Router,
	logger *logrus.Logger,
	reg *prometheus.Registry,
	repository handler.RunRepository,
) {
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods("GET")
	router.Handle("/metrics/runs", handler.NewRunsHandler(logger, repository)).Methods("GET")
	router.Handle("/metrics/backups", handler.NewLastSuccessfulHandler(logger, repository)).Methods("GET")
}
