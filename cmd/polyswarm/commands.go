package main

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alejandrodnm/polyswarm/internal/runner"
)

// newRunCmd arranca un loop independiente por agente.
func newRunCmd(flags *rootFlags) *cobra.Command {
	var agents []string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every agent in its own independent loop",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, flags.format)
			if err != nil {
				return err
			}
			defer a.Close()

			r := runner.New(a.runnerConfig, a.view, a.agents...)
			if len(agents) == 0 {
				r.StartAll(ctx)
			} else {
				for _, name := range agents {
					if err := r.Start(ctx, name); err != nil {
						slog.Error("failed to start agent", "agent", name, "err", err)
					}
				}
			}

			slog.Info("polyswarm running", "mode", "run", "agents", len(a.agents))
			r.Wait()

			final := context.WithoutCancel(ctx)
			if err := a.notifier.AgentStats(final, r.Stats(final)); err != nil {
				slog.Warn("notifier error", "err", err)
			}
			logSummary(a)
			slog.Info("polyswarm stopped cleanly")
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&agents, "agent", nil, "only start these agents (repeatable)")
	return cmd
}

// newSwarmCmd ejecuta rondas batch con todos los agentes.
func newSwarmCmd(flags *rootFlags) *cobra.Command {
	var rounds int
	cmd := &cobra.Command{
		Use:   "swarm",
		Short: "Run batch rounds: every agent evaluates, proposals are dispatched by size",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rounds") {
				cfg.Swarm.Iterations = rounds
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, flags.format)
			if err != nil {
				return err
			}
			defer a.Close()

			rc := a.runnerConfig
			rc.Iterations = cfg.Swarm.Iterations
			s := runner.NewSwarm(rc, a.view, a.notifier, a.agents...)

			slog.Info("polyswarm running", "mode", "swarm", "agents", len(a.agents))
			if err := s.Run(ctx); err != nil {
				return err
			}
			logSummary(a)
			slog.Info("polyswarm stopped cleanly")
			return nil
		},
	}
	cmd.Flags().IntVar(&rounds, "rounds", 0, "number of rounds (overrides swarm.iterations, 0 = unlimited)")
	return cmd
}

// newMarketsCmd imprime la vista negociable actual.
func newMarketsCmd(flags *rootFlags) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "markets",
		Short: "Print the current tradeable market view",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			view := newMarketView(cfg)
			return newNotifier(flags.format).Markets(ctx, view.ListTradeable(ctx, limit))
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max instruments to print")
	return cmd
}

func logSummary(a *app) {
	s := a.ledger.Summary()
	slog.Info("ledger summary",
		"starting", s.Starting,
		"treasury", s.Treasury,
		"allocated", s.Allocated,
		"agent_cash", s.AgentCash,
		"agents", s.Agents,
	)
}
