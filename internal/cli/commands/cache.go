package commands

import (
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/querylint/querylint/internal/cli/ui"
	"github.com/querylint/querylint/internal/metadata"
)

// NewCacheCommand creates the cache command group
func NewCacheCommand(global *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and clear cached type metadata",
	}

	cmd.AddCommand(newCacheClearCommand(global))
	cmd.AddCommand(newCacheTypesCommand(global))
	cmd.AddCommand(newCacheShowCommand(global))

	return cmd
}

func newCacheClearCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard all cached metadata",
		Long: `Discard all cached metadata, both in memory and in the configured store.
The next check fetches fresh metadata from the schema service.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.resolver.Reset(cmd.Context()); err != nil {
				return err
			}
			ui.WriteSuccess(cmd.OutOrStdout(), "Metadata cache cleared", global.noColor)
			return nil
		},
	}
}

func newCacheTypesCommand(global *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "types",
		Short: "List the types described by the schema service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if a.resolver.Authorize(ctx) != metadata.StateAuthorized {
				fmt.Fprint(cmd.ErrOrStderr(), ui.UnauthorizedWarning(global.noColor))
				return &reportedError{errors.New("not authorized")}
			}

			table := ui.NewTable(cmd.OutOrStdout(), global.noColor, "TYPE", "CACHED")
			for _, name := range a.resolver.KnownTypes() {
				cached := "no"
				if _, err := a.store.Load(ctx, name); err == nil {
					cached = "yes"
				}
				table.AddRow(name, cached)
			}
			table.Render()
			return nil
		},
	}
}

func newCacheShowCommand(global *globalOptions) *cobra.Command {
	var schemaDir string

	cmd := &cobra.Command{
		Use:   "show TYPE",
		Short: "Show the fields and sizes of one type",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, global, appOptions{schemaDir: schemaDir})
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if a.resolver.Authorize(ctx) != metadata.StateAuthorized {
				fmt.Fprint(cmd.ErrOrStderr(), ui.UnauthorizedWarning(global.noColor))
				return &reportedError{errors.New("not authorized")}
			}

			name := args[0]
			info := a.resolver.GetObjectInfo(ctx, name)
			if info == nil {
				fmt.Fprint(cmd.ErrOrStderr(), ui.UnknownTypeError(name, a.resolver.KnownTypes(), global.noColor))
				return &reportedError{fmt.Errorf("unknown type %s", name)}
			}

			writeObjectInfo(cmd, info, global.noColor)
			return nil
		},
	}

	cmd.Flags().StringVar(&schemaDir, "schema-dir", "", "Read type metadata from JSON files in this directory instead of the schema service")

	return cmd
}

func writeObjectInfo(cmd *cobra.Command, info *metadata.ObjectInfo, noColor bool) {
	names := make([]string, 0, len(info.Fields))
	for name := range info.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	fields := ui.NewTable(out, noColor, "FIELD", "TYPE", "LENGTH", "RELATIONSHIP")
	total := 0
	for _, name := range names {
		f := info.Fields[name]
		total += f.Length
		fields.AddRow(name, f.DataType, strconv.Itoa(f.Length), f.RelationshipName)
	}
	fields.Render()
	fmt.Fprintf(out, "\n%s: %d fields, %d bytes if all are selected\n", info.APIName, len(names), total)

	if len(info.ChildRelationships) == 0 {
		return
	}
	fmt.Fprintln(out)
	children := ui.NewTable(out, noColor, "CHILD RELATIONSHIP", "TYPE", "FIELD")
	for _, rel := range info.ChildRelationships {
		children.AddRow(rel.RelationshipName, rel.ChildObjectAPIName, rel.FieldName)
	}
	children.Render()
}
