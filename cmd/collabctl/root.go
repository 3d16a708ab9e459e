package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/GoSim-25-26J-441/go-collab-graph/internal/collab_graph/domain"
	"github.com/GoSim-25-26J-441/go-collab-graph/internal/logger"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:           "collabctl",
		Short:         "Lay out graphs and join collaborative graph sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logger.Init("development", logLevel)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Sync()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(newLayoutCmd(), newJoinCmd())
	return root
}

func cliLogger() *zap.Logger {
	return logger.Get()
}

// parseLayers turns "semantic,kinetic" into a layer set; empty means all
func parseLayers(raw string) (domain.LayerSet, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.AllLayerSet(), nil
	}
	set := domain.LayerSet{}
	for _, part := range strings.Split(raw, ",") {
		l := domain.Layer(strings.ToLower(strings.TrimSpace(part)))
		if l == "" {
			continue
		}
		if !l.Valid() {
			return nil, fmt.Errorf("unknown layer %q (want semantic, kinetic or dynamic)", l)
		}
		set[l] = true
	}
	return set, nil
}
