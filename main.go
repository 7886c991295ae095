package main

import (
	"math/rand"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/relex/eslog-forwarder/cmd"
	"github.com/relex/gotils/logger"
)

var version string

func main() {
	rand.Seed(time.Now().UnixNano()) // seed rand properly for all rand.* calls

	logger.Infof("version: %s", version)
	logger.Infof("GOMAXPROCS: %d", runtime.GOMAXPROCS(0))

	registerInfoMetric()

	cmd.Execute()
}

func registerInfoMetric() {
	opts := prometheus.GaugeOpts{}
	opts.Name = "eslog_forwarder_info"
	opts.Help = "eslog-forwarder application information"
	gauge := prometheus.NewGaugeVec(opts, []string{"version"})
	gauge.WithLabelValues(version).Set(1)
	prometheus.MustRegister(gauge)
}
