package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/querylint/querylint/internal/cli/ui"
	"github.com/querylint/querylint/internal/entitytree"
	"github.com/querylint/querylint/internal/metadata"
	"github.com/querylint/querylint/internal/tooling"
	"github.com/querylint/querylint/internal/utils"
	"github.com/querylint/querylint/internal/watch"
)

// checkOptions holds the flags of the check command
type checkOptions struct {
	format    string
	tree      bool
	schemaDir string
	watch     bool
}

// fileReport is the YAML form of one checked file
type fileReport struct {
	Path        string             `yaml:"path"`
	Diagnostics []diagnosticReport `yaml:"diagnostics"`
}

type diagnosticReport struct {
	Line      int    `yaml:"line"`
	Column    int    `yaml:"column"`
	EndLine   int    `yaml:"endLine"`
	EndColumn int    `yaml:"endColumn"`
	Severity  string `yaml:"severity"`
	Code      string `yaml:"code"`
	Message   string `yaml:"message"`
}

// checkedFile is a file after analysis
type checkedFile struct {
	path        string
	content     string
	doc         *tooling.Document
	diagnostics []tooling.Diagnostic
}

// NewCheckCommand creates the check command
func NewCheckCommand(global *globalOptions) *cobra.Command {
	opts := &checkOptions{}

	cmd := &cobra.Command{
		Use:   "check PATH...",
		Short: "Check query files for fields and records that may be too large",
		Long: `Check query documents for selected fields and records whose size could
exceed the 32 KB limit.

Directories are searched recursively for .graphql and .gql documents and
for scripts. Files ending in .js, .ts, .jsx, .tsx or .mjs are scanned for
gql tagged templates; every other file is parsed as a single query document.

Syntax errors make the command fail. Size findings are informational and do
not change the exit status.

With --watch the files are checked again whenever one of them is saved,
until the command is interrupted.`,
		Example: `  querylint check queries/account.graphql
  querylint check --format yaml src/components
  querylint check --schema-dir testdata/objects --tree account.graphql
  querylint check --watch queries/*.graphql`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, global, opts, args)
		},
	}

	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format (text, yaml)")
	cmd.Flags().BoolVar(&opts.tree, "tree", false, "Print the entity tree of every query with resolved sizes")
	cmd.Flags().StringVar(&opts.schemaDir, "schema-dir", "", "Read type metadata from JSON files in this directory instead of the schema service")
	cmd.Flags().BoolVarP(&opts.watch, "watch", "w", false, "Check again whenever a file changes")

	return cmd
}

func runCheck(cmd *cobra.Command, global *globalOptions, opts *checkOptions, paths []string) error {
	if opts.format != "text" && opts.format != "yaml" {
		return fmt.Errorf("unknown format %q (expected text or yaml)", opts.format)
	}

	paths, err := utils.ExpandPaths(paths)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no query files found")
	}

	a, err := newApp(cmd, global, appOptions{schemaDir: opts.schemaDir})
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.watch {
		return watchCheck(cmd, global, opts, a, paths)
	}
	return checkOnce(cmd, global, opts, a, paths)
}

// checkOnce checks every path and writes the report
func checkOnce(cmd *cobra.Command, global *globalOptions, opts *checkOptions, a *app, paths []string) error {
	ctx := cmd.Context()
	files := make([]checkedFile, 0, len(paths))
	for _, path := range paths {
		f, err := checkFile(ctx, a.api, path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	out := cmd.OutOrStdout()
	if opts.tree {
		// Keep the YAML report parseable
		treeOut := out
		if opts.format == "yaml" {
			treeOut = cmd.ErrOrStderr()
		}
		writeTrees(ctx, treeOut, a.validator, files)
	}

	switch opts.format {
	case "yaml":
		if err := writeYAMLReport(out, files); err != nil {
			return err
		}
	default:
		problems := 0
		for _, f := range files {
			ui.WriteDiagnostics(out, f.path, f.content, f.diagnostics, global.noColor)
			problems += len(f.diagnostics)
		}
		fmt.Fprintln(out, ui.Summary(len(files), problems, global.noColor))
	}

	if a.resolver.State() == metadata.StateUnauthorized && opts.schemaDir == "" {
		fmt.Fprint(cmd.ErrOrStderr(), ui.UnauthorizedWarning(global.noColor))
	}

	if n := countParseErrors(files); n > 0 {
		return fmt.Errorf("%d %s could not be parsed", n, pluralize(n, "query", "queries"))
	}
	return nil
}

// watchCheck runs checkOnce, then again after every change, until the
// command context is cancelled or the process is interrupted
func watchCheck(cmd *cobra.Command, global *globalOptions, opts *checkOptions, a *app, paths []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	changes := make(chan []string, 1)
	fw, err := watch.NewFileWatcher(paths, watch.DefaultDelay, a.logger.Named("watch"), func(changed []string) {
		select {
		case changes <- changed:
		case <-ctx.Done():
		}
	})
	if err != nil {
		return err
	}
	if err := fw.Start(); err != nil {
		return err
	}
	defer fw.Stop()

	errOut := cmd.ErrOrStderr()
	report := func() {
		if err := checkOnce(cmd, global, opts, a, paths); err != nil {
			ui.WriteMessage(errOut, ui.MessageOptions{Level: ui.LevelError, Problem: err.Error(), NoColor: global.noColor})
		}
		fmt.Fprintf(errOut, "Watching %d %s for changes. Press Ctrl+C to stop.\n", len(paths), pluralize(len(paths), "file", "files"))
	}

	report()
	for {
		select {
		case <-ctx.Done():
			return nil
		case changed := <-changes:
			a.logger.Debug("re-checking", zap.Strings("changed", changed))
			fmt.Fprintln(errOut)
			report()
		}
	}
}

func checkFile(ctx context.Context, api *tooling.API, path string) (checkedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return checkedFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)

	doc, err := api.ParseFile(path, content)
	if err != nil {
		return checkedFile{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	diagnostics, err := api.GetDiagnostics(ctx, path)
	if err != nil {
		return checkedFile{}, err
	}

	return checkedFile{path: path, content: content, doc: doc, diagnostics: diagnostics}, nil
}

func writeTrees(ctx context.Context, w io.Writer, v *tooling.OversizedRecordValidator, files []checkedFile) {
	for _, f := range files {
		for i, q := range f.doc.Queries {
			fmt.Fprintf(w, "# %s (query %d)\n", f.path, i+1)
			root, _ := v.Analyze(ctx, q)
			entitytree.Dump(w, root)
		}
	}
}

func writeYAMLReport(w io.Writer, files []checkedFile) error {
	reports := make([]fileReport, 0, len(files))
	for _, f := range files {
		report := fileReport{Path: f.path, Diagnostics: make([]diagnosticReport, 0, len(f.diagnostics))}
		for _, d := range f.diagnostics {
			report.Diagnostics = append(report.Diagnostics, diagnosticReport{
				Line:      d.Range.Start.Line + 1,
				Column:    d.Range.Start.Character + 1,
				EndLine:   d.Range.End.Line + 1,
				EndColumn: d.Range.End.Character + 1,
				Severity:  d.Severity.String(),
				Code:      d.Code,
				Message:   d.Message,
			})
		}
		reports = append(reports, report)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(reports); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return enc.Close()
}

func countParseErrors(files []checkedFile) int {
	n := 0
	for _, f := range files {
		n += len(f.doc.ParseErrors)
	}
	return n
}

func pluralize(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
