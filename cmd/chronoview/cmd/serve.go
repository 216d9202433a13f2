package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hsterling/chronoview/pkg/api"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve <file.cq4>",
	Short: "Serve decoded messages over HTTP",
	Long: `Serve the decoded queue over a read-only HTTP API: queue info, paged
messages, search, stats, and Prometheus metrics on /metrics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig(cmd)
		if err != nil {
			return err
		}
		if bind, _ := cmd.Flags().GetString("bind"); bind != "" {
			cfg.Server.Bind = bind
		}
		if port, _ := cmd.Flags().GetInt("port"); port != 0 {
			cfg.Server.Port = port
		}

		svc, err := openService(cfg, args[0])
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Load(); err != nil {
			return err
		}

		fmt.Fprintf(os.Stderr, "Serving %s on %s:%d\n", args[0], cfg.Server.Bind, cfg.Server.Port)
		return api.StartServer(svc, api.ServerConfig{Bind: cfg.Server.Bind, Port: cfg.Server.Port})
	},
}

func init() {
	serveCmd.Flags().String("bind", "", "Bind address (default from config)")
	serveCmd.Flags().Int("port", 0, "Listen port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
