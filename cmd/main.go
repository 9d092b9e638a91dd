package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/victornm/quizroom/internal/config"
	"github.com/victornm/quizroom/internal/server"
)

func main() {
	cobra.CheckErr(newRootCmd().Execute())
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "quizroom",
		Short:         "Live host-driven multiplayer quiz rooms.",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return serve(c)
		},
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to the config file (env: CONFIG_PATH)")
	cmd.AddCommand(newAdminCmd())
	cmd.CompletionOptions.HiddenDefaultCmd = true

	return cmd
}

func serve(c server.Config) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
	return nil
}

func loadConfig(p string) (server.Config, error) {
	var c server.Config
	c.HTTP.Port = 8080
	c.GRPC.Port = 9090
	c.Game.HostGracePeriod = 30 * time.Second
	c.Game.Retention = 10 * time.Minute
	c.Redis.Archive.Prefix = "quizroom"
	c.Redis.Pubsub.Prefix = "quizroom"

	if p == "" {
		p = os.Getenv("CONFIG_PATH")
	}
	if p == "" {
		return c, fmt.Errorf("config path not set: use --config or CONFIG_PATH")
	}

	if err := config.Load(p, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
