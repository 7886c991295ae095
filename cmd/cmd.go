// Package cmd provides the command line interface of the forwarder
package cmd

import (
	"github.com/relex/gotils/config"
)

func init() {
	config.AddParentCmdWithArgs("", "eslog-forwarder ships log events to Elasticsearch in batched bulk requests", &rootCmd, rootCmd.preRun, rootCmd.postRun)
	config.AddCmdWithArgs("run ...", "Run forwarder", &runCmd, runCmd.run)
}

// Execute parses the command line and runs the specified command
func Execute() {
	config.Execute()
}
