// root.go viper root command code
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wildcall/callmatch-go/cmd/analyze"
	"github.com/wildcall/callmatch-go/cmd/extract"
	"github.com/wildcall/callmatch-go/cmd/listen"
	"github.com/wildcall/callmatch-go/internal/buildinfo"
	"github.com/wildcall/callmatch-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "callmatch",
		Short: "CallMatch wildlife call similarity CLI",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		analyze.Command(settings),
		extract.Command(settings),
		listen.Command(settings),
		versionCommand(),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			info := buildinfo.Current()
			fmt.Printf("callmatch %s (built %s)\n", info.Version, info.BuildDate)
		},
	}
}

// setupFlags binds the global flags shared by all subcommands.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Cache.Path, "masters", viper.GetString("cache.path"), "Directory holding master call feature files")
	rootCmd.PersistentFlags().IntVar(&settings.Engine.WorkerThreads, "threads", viper.GetInt("engine.workerthreads"), "Pipeline worker threads (default 0 which sizes from CPU topology)")
	rootCmd.PersistentFlags().Float64Var(&settings.VAD.EnergyThreshold, "vad-threshold", viper.GetFloat64("vad.energythreshold"), "Voice activity energy threshold")
}
