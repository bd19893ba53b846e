package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"bilisub/internal/daemon"
	"bilisub/internal/logging"
	"bilisub/internal/notifications"
	"bilisub/internal/platform/bilibili"
	"bilisub/internal/queue"
	"bilisub/internal/recognize/whisper"
	"bilisub/internal/workflow"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var bind string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP task service in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if bind != "" {
				cfg.Paths.APIBind = bind
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			logger, err := ctx.logger()
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			store, err := queue.Open(cfg)
			if err != nil {
				logger.Error("open task store", logging.Error(err))
				return err
			}
			platform, err := bilibili.NewFromConfig(cfg, logger)
			if err != nil {
				store.Close()
				return err
			}
			mgr, err := workflow.NewManager(cfg, store, workflow.Deps{
				Platform:   platform,
				Recognizer: whisper.NewService(whisper.ConfigFrom(cfg), logger),
				Notifier:   notifications.NewService(cfg),
			}, logger)
			if err != nil {
				store.Close()
				return err
			}

			d, err := daemon.New(cfg, store, mgr, logger)
			if err != nil {
				store.Close()
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			if err := d.Start(signalCtx); err != nil {
				return err
			}
			<-signalCtx.Done()
			logger.Info("bilisub daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
			return nil
		},
	}

	cmd.Flags().StringVar(&bind, "bind", "", "Override paths.api_bind")
	return cmd
}
