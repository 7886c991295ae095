// Package run wires settings, the event producer and the forwarding pipeline into a running
// process.
package run

import (
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/relex/eslog-forwarder/base"
	"github.com/relex/eslog-forwarder/defs"
	"github.com/relex/eslog-forwarder/output/elasticsearch"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
)

// Run starts the forwarder and blocks until stopped by signals or the end of input
func Run(configPath string) {
	settings, settingsErr := LoadSettings(configPath)
	if settingsErr != nil {
		logger.Fatal(settingsErr)
	}

	allocator := base.NewEventAllocator(currentProcessInfo())
	metricFactory := promreg.NewMetricFactory("eslogforwarder_", nil, nil)

	pipeline, pipelineErr := elasticsearch.NewPipeline(logger.Root(), settings, allocator, metricFactory)
	if pipelineErr != nil {
		logger.Fatal(pipelineErr)
	}
	pipeline.Launch()
	settings.Watch()

	producer := NewLineProducer(logger.Root(), os.Stdin, allocator, pipeline, metricFactory)
	producer.Launch()

	runLogger := logger.WithField(defs.LabelComponent, "Launcher")

	// run until a shutdown signal or the input stream ends
	{
		sigChan := make(chan os.Signal, 10)
		signal.Notify(sigChan, syscall.SIGINT)
		signal.Notify(sigChan, syscall.SIGTERM)
		select {
		case s := <-sigChan:
			runLogger.Infof("received %s, shutting down", s)
		case <-producer.Stopped().Channel():
			runLogger.Infof("input ended, shutting down")
		}
	}

	pipeline.Stop().WaitForever()
	runLogger.Info("clean exit")
}

func currentProcessInfo() base.ProcessInfo {
	return base.ProcessInfo{
		Name:  filepath.Base(os.Args[0]),
		ID:    os.Getpid(),
		Title: strings.Join(os.Args, " "),
	}
}
