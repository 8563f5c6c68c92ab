package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Lucascis/discord-bot-sub000/internal/logging"
	"github.com/Lucascis/discord-bot-sub000/pkg/staleguard"
)

type rootFlags struct {
	config    string
	redis     string
	logLevel  string
	logFormat string
}

// session is the staleguard instance and logger shared by one command run.
type session struct {
	sg     *staleguard.Staleguard
	logger *logging.ZapLogger
}

func (s *session) close() {
	_ = s.sg.Close()
	_ = s.logger.Sync()
}

func newRootCmd() *cobra.Command {
	rf := new(rootFlags)
	root := &cobra.Command{
		Use:           "staleguardctl",
		Short:         "Talk to a staleguard store through the resilient client.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	fs := root.PersistentFlags()
	fs.StringVarP(&rf.config, "config", "c", "", "config file (json, yaml or toml)")
	fs.StringVar(&rf.redis, "redis", "", "redis address, overrides the config file")
	fs.StringVar(&rf.logLevel, "log-level", "warn", "debug, info, warn or error")
	fs.StringVar(&rf.logFormat, "log-format", "console", "console or json")

	root.AddCommand(
		newPingCmd(rf),
		newGetCmd(rf),
		newSetCmd(rf),
		newIncrCmd(rf),
		newExpireCmd(rf),
		newPublishCmd(rf),
		newSubscribeCmd(rf),
		newStatsCmd(rf),
		newServeMetricsCmd(rf),
	)
	return root
}

// open builds a staleguard instance from the flags. Without --config and
// --redis the in-process memory store is used.
func (rf *rootFlags) open(extra ...staleguard.Option) (*session, error) {
	zl, err := logging.NewZap(rf.logLevel, rf.logFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to init logger, %w", err)
	}
	logger := logging.NewZapLogger(zl.With(zap.String("app", "staleguardctl")))

	opts := append([]staleguard.Option{
		staleguard.WithTypesLogger(logger),
		staleguard.WithoutMetricsPublishing(),
	}, extra...)
	if rf.redis != "" {
		opts = append(opts, staleguard.WithRedisAddress(rf.redis))
	}

	var sg *staleguard.Staleguard
	switch {
	case rf.config != "":
		sg, err = staleguard.NewFromFile(rf.config, opts...)
	case rf.redis != "":
		sg, err = staleguard.New(opts...)
	default:
		sg, err = staleguard.NewMemoryOnly(opts...)
	}
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open store, %w", err)
	}
	return &session{sg: sg, logger: logger}, nil
}
