package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AlecAivazis/survey/v2"
	"github.com/spf13/cobra"

	"github.com/querylint/querylint/internal/cli/config"
	"github.com/querylint/querylint/internal/cli/ui"
)

// askFunc matches survey.Ask so tests can answer prompts
type askFunc func(qs []*survey.Question, response interface{}, opts ...survey.AskOpt) error

// initAnswers receives the interactive answers of the init command
type initAnswers struct {
	SchemaURL string `survey:"schemaURL"`
	Token     string `survey:"token"`
	Backend   string `survey:"backend"`
	RedisAddr string `survey:"redisAddr"`
}

// NewInitCommand creates the init command
func NewInitCommand(global *globalOptions) *cobra.Command {
	var (
		output string
		force  bool
		yes    bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a querylint.yaml configuration file",
		Long: `Create a querylint.yaml configuration file by answering a few questions.

The access token is stored in the file. Leave it empty and set
QUERYLINT_SCHEMA_TOKEN instead to keep it out of version control.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ask := askFunc(survey.Ask)
			if yes {
				ask = nil
			}
			return runInit(cmd, global, ask, output, force)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", config.FileName+".yaml", "Path of the file to write")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Write the default configuration without prompting")

	return cmd
}

func runInit(cmd *cobra.Command, global *globalOptions, ask askFunc, output string, force bool) error {
	if _, err := os.Stat(output); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", output)
	}

	cfg := config.Default()
	if ask != nil {
		answers := initAnswers{Backend: config.BackendFile, RedisAddr: cfg.Redis.Addr}
		if err := ask(initQuestions(cfg), &answers); err != nil {
			return err
		}

		cfg.Schema.URL = answers.SchemaURL
		cfg.Schema.Token = answers.Token
		cfg.Cache.Backend = answers.Backend
		if answers.Backend == config.BackendRedis && answers.RedisAddr != "" {
			cfg.Redis.Addr = answers.RedisAddr
		}
	}

	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := config.Save(output, cfg); err != nil {
		return err
	}

	ui.WriteSuccess(cmd.OutOrStdout(), fmt.Sprintf("Wrote %s", output), global.noColor)
	return nil
}

func initQuestions(cfg *config.Config) []*survey.Question {
	return []*survey.Question{
		{
			Name: "schemaURL",
			Prompt: &survey.Input{
				Message: "Schema service URL:",
				Help:    "The UI API root, e.g. https://example.my.salesforce.com/services/data/v60.0/ui-api",
			},
		},
		{
			Name: "token",
			Prompt: &survey.Password{
				Message: "Access token (optional):",
				Help:    "Leave empty to set QUERYLINT_SCHEMA_TOKEN instead",
			},
		},
		{
			Name: "backend",
			Prompt: &survey.Select{
				Message: "Cache metadata in:",
				Options: []string{config.BackendFile, config.BackendRedis},
				Default: cfg.Cache.Backend,
			},
		},
		{
			Name: "redisAddr",
			Prompt: &survey.Input{
				Message: "Redis address (used with the redis backend):",
				Default: cfg.Redis.Addr,
			},
		},
	}
}
