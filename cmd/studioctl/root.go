package main

import (
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/client"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/config"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/logging"
)

type commandContext struct {
	remoteFlag   *string
	logLevelFlag *string
	intervalFlag *time.Duration

	once   sync.Once
	cfg    *config.Config
	log    *logrus.Logger
	remote *client.Remote
	err    error
}

func newCommandContext(remoteFlag, logLevelFlag *string, intervalFlag *time.Duration) *commandContext {
	return &commandContext{
		remoteFlag:   remoteFlag,
		logLevelFlag: logLevelFlag,
		intervalFlag: intervalFlag,
	}
}

func (c *commandContext) ensure(cmd *cobra.Command) error {
	c.once.Do(func() {
		cfg, err := config.Load()
		if err != nil {
			c.err = err
			return
		}
		if c.remoteFlag != nil && strings.TrimSpace(*c.remoteFlag) != "" {
			cfg.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(*c.remoteFlag), "/")
		}
		if c.intervalFlag != nil && *c.intervalFlag > 0 {
			cfg.Poll.IntervalMS = int(c.intervalFlag.Milliseconds())
		}

		log, err := logging.New(*c.logLevelFlag, "")
		if err != nil {
			c.err = err
			return
		}
		log.SetOutput(cmd.ErrOrStderr())

		c.cfg = cfg
		c.log = log
		c.remote = client.NewRemote(&cfg.Remote, log)
	})
	return c.err
}

func (c *commandContext) scriptStore() *client.ScriptStoreClient {
	return client.NewScriptStoreClient(c.remote)
}

func (c *commandContext) jobs() *client.JobClient {
	return client.NewJobClient(c.remote)
}

func newRootCommand() *cobra.Command {
	var remoteFlag string
	var logLevelFlag string
	var intervalFlag time.Duration

	ctx := newCommandContext(&remoteFlag, &logLevelFlag, &intervalFlag)

	rootCmd := &cobra.Command{
		Use:           "studioctl",
		Short:         "Manage saved scripts of the education video studio",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.ensure(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&remoteFlag, "remote", "", "Base URL of the studio backend API (overrides REMOTE_BASE_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevelFlag, "log-level", "warn", "Log level")
	rootCmd.PersistentFlags().DurationVar(&intervalFlag, "interval", 0, "Status poll interval (overrides POLL_INTERVAL_MS)")

	rootCmd.AddCommand(newScriptsCommand(ctx))

	return rootCmd
}
