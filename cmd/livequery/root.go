package main

import (
	"github.com/spf13/cobra"
)

// globalOptions are the persistent flags shared by every subcommand.
type globalOptions struct {
	configPath  string
	natsURL     string
	embedded    bool
	storeDir    string
	logLevel    string
	metricsAddr string
	identity    string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "livequery",
		Short: "Watch and edit live documents backed by NATS JetStream KV",
		Long: `livequery keeps documents in a NATS JetStream KeyValue bucket and streams
their state (idle, loading, success, error) as they change.

Connect to an existing server with --nats-url, or start an in-process server
with --embedded.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "YAML configuration file")
	flags.StringVar(&opts.natsURL, "nats-url", "nats://127.0.0.1:4222", "NATS server URL")
	flags.BoolVar(&opts.embedded, "embedded", false, "start an in-process NATS server")
	flags.StringVar(&opts.storeDir, "store-dir", "", "JetStream directory for --embedded (temporary if empty)")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flags.StringVar(&opts.identity, "identity", "", "identity substituted for the %ID% path placeholder")

	root.AddCommand(
		newWatchCmd(opts),
		newGetCmd(opts),
		newSetCmd(opts),
		newDeleteCmd(opts),
		newShareCmd(opts),
		newServeCmd(opts),
	)

	return root
}
