package main

import (
	"github.com/filiup/quizsession/internal/config"
	"github.com/filiup/quizsession/internal/logger"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs.
type app struct {
	cfg *config.Config
	log zerolog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:          "quizd",
		Short:        "Student quiz attempt API",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			a.cfg = config.Load()
			a.log = logger.Setup(a.cfg.LogLevel, a.cfg.LogFormat)
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newTokenCmd(a),
		newSeedCmd(a),
	)
	return root
}
