package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Lucascis/discord-bot-sub000/internal/logging"
	"github.com/Lucascis/discord-bot-sub000/internal/metrics"
	"github.com/Lucascis/discord-bot-sub000/internal/store"
	"github.com/Lucascis/discord-bot-sub000/pkg/staleguard"
)

func newPingCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Ping the store and print the reply with its latency.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			timer := metrics.StartTimer(metrics.NewLoggingPublisher(logging.FromLogger(s.logger)), "cli.ping")
			reply := s.sg.Store().Ping(cmd.Context())
			elapsed := timer.Stop()

			health := s.sg.Store().Health()
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s)\n", reply, health.Status, elapsed.Round(time.Microsecond))
			return nil
		},
	}
}

func newGetCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored at KEY.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			value, found := s.sg.Store().Get(cmd.Context(), args[0])
			if !found {
				fmt.Fprintln(cmd.OutOrStdout(), "(nil)")
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), value)
			return nil
		},
	}
}

func newSetCmd(rf *rootFlags) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE at KEY.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			s.sg.Store().Set(cmd.Context(), args[0], args[1], ttl)
			fmt.Fprintln(cmd.OutOrStdout(), "OK")
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "expiry, zero keeps the key until deleted")
	return cmd
}

func newIncrCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "incr KEY",
		Short: "Increment the counter at KEY and print the new value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			fmt.Fprintln(cmd.OutOrStdout(), s.sg.Store().Incr(cmd.Context(), args[0]))
			return nil
		},
	}
}

func newExpireCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "expire KEY TTL",
		Short: "Set a new expiry on KEY.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, err := time.ParseDuration(args[1])
			if err != nil {
				return fmt.Errorf("invalid ttl %q, %w", args[1], err)
			}
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			fmt.Fprintln(cmd.OutOrStdout(), s.sg.Store().Expire(cmd.Context(), args[0], ttl))
			return nil
		},
	}
}

func newPublishCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "publish CHANNEL MESSAGE",
		Short: "Publish MESSAGE and print the number of receivers.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			n := s.sg.Store().Publish(cmd.Context(), args[0], args[1])
			if buffered := s.sg.Store().Metrics().Buffer.Len; buffered > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "%d (buffered %d)\n", n, buffered)
				return nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
}

func newSubscribeCmd(rf *rootFlags) *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "subscribe CHANNEL...",
		Short: "Print messages from the channels until interrupted.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			sub, err := s.sg.Store().Subscribe(cmd.Context(), args...)
			if err != nil {
				return fmt.Errorf("failed to subscribe, %w", err)
			}
			defer sub.Close()

			return printMessages(cmd, sub, count)
		},
	}
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n messages, zero waits forever")
	return cmd
}

func printMessages(cmd *cobra.Command, sub store.Subscription, count int) error {
	ctx := cmd.Context()
	for seen := 0; count == 0 || seen < count; seen++ {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-sub.Messages():
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", msg.Channel, msg.Payload)
		}
	}
	return nil
}

type statsReport struct {
	Client  store.ClientMetrics        `json:"client"`
	Health  staleguard.HealthMetrics   `json:"health"`
	Metrics staleguard.MetricsSnapshot `json:"metrics"`
}

func newStatsCmd(rf *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print client metrics and health as JSON.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			report := statsReport{
				Health:  s.sg.Health(cmd.Context()),
				Client:  s.sg.Store().Metrics(),
				Metrics: s.sg.Metrics(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}
}

func newServeMetricsCmd(rf *rootFlags) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-metrics",
		Short: "Serve /metrics and /healthz until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := rf.open()
			if err != nil {
				return err
			}
			defer s.close()

			s.logger.Info("Serving metrics", "address", addr)
			return metrics.Serve(cmd.Context(), addr, s.sg.MetricsHandler(), logging.FromLogger(s.logger))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":9102", "listen address")
	return cmd
}
