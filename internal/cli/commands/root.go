package commands

import (
	"errors"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	global := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:   "querylint",
		Short: "Diagnostics for record queries that may exceed size limits",
		Long: color.CyanString(`querylint - size diagnostics for record queries

querylint inspects GraphQL record queries and reports selected fields and
records whose stored size could exceed the 32 KB limit of a single response
field. Type metadata is fetched from the schema service and cached locally.

It runs as a language server inside your editor or as a one-shot checker:
  • querylint lsp            start the language server on stdio
  • querylint check FILE...  check query documents and JS/TS sources
  • querylint cache clear    forget all cached metadata`),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if global.noColor {
				color.NoColor = true
			}
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&global.configPath, "config", "", "Config file (default: ./querylint.yaml)")
	flags.StringVar(&global.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")
	flags.BoolVar(&global.noColor, "no-color", false, "Disable colored output")

	// Add subcommands
	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewLSPCommand(global))
	rootCmd.AddCommand(NewCheckCommand(global))
	rootCmd.AddCommand(NewCacheCommand(global))
	rootCmd.AddCommand(NewInitCommand(global))

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the querylint version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			// Set GoVersion to actual runtime if not set at build time
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			out := cmd.OutOrStdout()
			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)

			titleColor.Fprint(out, "querylint version: ")
			valueColor.Fprintln(out, Version)

			titleColor.Fprint(out, "Git commit: ")
			valueColor.Fprintln(out, GitCommit)

			titleColor.Fprint(out, "Build date: ")
			valueColor.Fprintln(out, BuildDate)

			titleColor.Fprint(out, "Go version: ")
			valueColor.Fprintln(out, goVer)
		},
	}
}

// Execute runs the root command
func Execute() error {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var reported *reportedError
		if errors.As(err, &reported) {
			return err
		}
		errorColor := color.New(color.FgRed, color.Bold)
		errorColor.Fprintf(rootCmd.ErrOrStderr(), "Error: %v\n", err)
		return err
	}
	return nil
}
