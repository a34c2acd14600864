package cli

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/plugrelay/plugrelay/internal/config"
	"github.com/plugrelay/plugrelay/internal/server"
	"github.com/plugrelay/plugrelay/protocol"
)

var (
	servePluginsDir   string
	servePort         int
	serveDebounce     int
	serveMaxTransfers int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host plugin packages for update clients",
	Long: `Scan a directory of plugin directories and serve them to update clients.
Each plugin directory carries a plugin.toml descriptor naming its files and
folder bundles. Changes under the directory are picked up live: after writes
settle, the catalog is rebuilt and new versions are served without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&servePluginsDir, "plugins-dir", "", "Directory of hosted plugin packages (default \"plugins\")")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Control-plane port; the data plane binds the next port up")
	serveCmd.Flags().IntVar(&serveDebounce, "debounce", 0, "Seconds of quiet before a change triggers a catalog rebuild")
	serveCmd.Flags().IntVar(&serveMaxTransfers, "max-transfers", 0, "Maximum concurrent data-plane transfers")
	rootCmd.AddCommand(serveCmd)
}

// serveSettings resolves each setting as flag, then config file or
// environment, then built-in default.
func serveSettings(cmd *cobra.Command) server.Config {
	pluginsDir := servePluginsDir
	if !cmd.Flags().Changed("plugins-dir") {
		if v := config.Get(config.KeyPluginsDir); v != "" {
			pluginsDir = v
		} else {
			pluginsDir = "plugins"
		}
	}

	port := servePort
	if !cmd.Flags().Changed("port") {
		if v := config.GetInt(config.KeyPort); v != 0 {
			port = v
		} else {
			port = protocol.DefaultPort
		}
	}

	debounce := serveDebounce
	if !cmd.Flags().Changed("debounce") {
		debounce = config.GetInt(config.KeyDebounceSeconds)
	}
	if debounce <= 0 {
		debounce = 2
	}

	maxTransfers := serveMaxTransfers
	if !cmd.Flags().Changed("max-transfers") {
		maxTransfers = config.GetInt(config.KeyMaxTransfers)
	}

	return server.Config{
		PluginRoot:   pluginsDir,
		Port:         port,
		Quiescence:   time.Duration(debounce) * time.Second,
		MaxTransfers: maxTransfers,
		Logger:       slog.Default(),
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(serveSettings(cmd))
	return srv.Run(ctx)
}
