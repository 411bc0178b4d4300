package commands

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/keylight2mqtt/internal/bridge"
	"github.com/jmylchreest/keylight2mqtt/internal/errors"
	"github.com/jmylchreest/keylight2mqtt/internal/http/handlers"
	"github.com/jmylchreest/keylight2mqtt/internal/server"
	"github.com/jmylchreest/keylight2mqtt/internal/utils"
	"github.com/jmylchreest/keylight2mqtt/internal/ws"
)

// runBridge starts the bridge and, when configured, the status API. It
// returns when the command context is cancelled or the bridge fails.
func runBridge(cmd *cobra.Command, v *viper.Viper, info BuildInfo, opts ...bridge.Option) error {
	cfg, err := loadConfig(cmd, v)
	if err != nil {
		return err
	}

	logger := utils.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)
	utils.SetAsDefaultLogger(logger)
	logger.Info("Starting keylight2mqtt",
		"version", info.Version,
		"commit", info.Commit,
		"buildDate", info.BuildDate,
	)

	b := bridge.New(cfg, logger, opts...)

	if cfg.Health.ListenAddress != "" {
		hub := ws.NewHub(logger, b.Events())
		defer hub.Close()

		srv := server.New(logger, cfg.Health, b.Status(), &handlers.VersionHandler{
			Version: info.Version,
			Commit:  info.Commit,
			Date:    info.BuildDate,
		}, server.WithEventStream(hub))
		if err := srv.Start(); err != nil {
			return errors.LogErrorAndReturn(logger, errors.Fatalf("status API: %w", err), "failed to start status API")
		}
		defer srv.Stop()
	}

	return b.Run(cmd.Context())
}
