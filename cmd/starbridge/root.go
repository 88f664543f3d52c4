package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/hostbridge/config"
	"github.com/wippyai/hostbridge/engine"
	"github.com/wippyai/hostbridge/reclaim"
	"github.com/wippyai/hostbridge/runtime"
)

// Version is set at build time.
var Version = "0.1.0"

// app carries the resolved configuration to the subcommands.
type app struct {
	target  *config.Target
	logger  *zap.Logger
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{logger: zap.NewNop()}

	root := &cobra.Command{
		Use:   "starbridge",
		Short: "Run Starlark scripts through the hostbridge runtime",
		Long: `starbridge embeds Starlark sub-interpreters behind the hostbridge
ownership model: attachment tokens, borrowed and owned handles, and
deferred reclamation of references dropped without the interpreter lock.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "version" {
				return nil
			}
			target, err := config.Load(a.cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger, err := target.Logging.Build()
			if err != nil {
				return err
			}
			a.target = target
			a.logger = logger
			runtime.SetLogger(logger.Named("runtime"))
			reclaim.SetLogger(logger.Named("reclaim"))
			engine.SetLogger(logger.Named("engine"))
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.logger.Sync()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "config file (YAML)")
	pf.String("gil-mode", "", "interpreter lock mode (standard|disabled)")
	pf.String("abi", "", "ABI tier (full|limited)")
	pf.String("log-level", "", "log level (debug|info|warn|error)")
	pf.Int("pool-size", 0, "Starlark threads kept per interpreter")

	_ = root.RegisterFlagCompletionFunc("gil-mode", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"standard", "disabled"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = root.RegisterFlagCompletionFunc("abi", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{"full", "limited"}, cobra.ShellCompDirectiveNoFileComp
	})

	root.AddCommand(newRunCmd(a), newStressCmd(a), newReplCmd(a), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "starbridge %s (interpreter %d.%d)\n",
				Version, engine.HostVersion.Major, engine.HostVersion.Minor)
		},
	}
}
