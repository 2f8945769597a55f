// Command distctl is a thin CLI over the distribution-go library: pull a
// manifest, push a single image between registries, save an image as a
// Docker v1.2 tarball, or run a cron-scheduled mirror from a config file,
// per cmd/regsync/root.go generalized beyond pure repository mirroring.
package main

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const usageDesc = `distctl pulls, pushes, saves, and mirrors OCI/Docker images`

var rootOpts struct {
	verbosity string
	logJSON   bool
}

var log = &logrus.Logger{
	Out:       os.Stderr,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.InfoLevel,
}

var rootCmd = &cobra.Command{
	Use:   "distctl <cmd>",
	Short: "Utility for moving OCI/Docker images",
	Long:  usageDesc,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&rootOpts.verbosity, "verbosity", "v", logrus.InfoLevel.String(), "Log level (debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().BoolVar(&rootOpts.logJSON, "log-json", false, "Emit logs as JSON")
	rootCmd.PersistentPreRunE = rootPreRun

	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(syncCmd)
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	lvl, err := logrus.ParseLevel(rootOpts.verbosity)
	if err != nil {
		return err
	}
	log.SetLevel(lvl)
	if rootOpts.logJSON {
		log.Formatter = new(logrus.JSONFormatter)
	} else {
		log.Formatter = &logrus.TextFormatter{FullTimestamp: true}
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
