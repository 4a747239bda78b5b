package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
)

// Level represents the severity of a message
type Level int

const (
	LevelError Level = iota
	LevelWarning
	LevelInfo
)

// MessageOptions configures message formatting
type MessageOptions struct {
	Level        Level
	Context      string
	Problem      string
	Suggestions  []string
	HelpCommands []string
	NoColor      bool
}

// FormatMessage creates a standardized message with suggestions and help
// commands.
//
// Example output:
//
//	❌ UNKNOWN TYPE: Acount
//	   The schema service does not describe 'Acount'.
//
//	   Did you mean: Account?
//
//	   → List cached types: querylint cache types
func FormatMessage(opts MessageOptions) string {
	var b strings.Builder

	headerColor, bodyColor, symbol := levelStyle(opts.Level)
	if opts.NoColor {
		headerColor.DisableColor()
		bodyColor.DisableColor()
	}

	if opts.Context != "" {
		headerColor.Fprintf(&b, "%s %s\n", symbol, strings.ToUpper(opts.Context))
		bodyColor.Fprintf(&b, "   %s\n", opts.Problem)
	} else {
		headerColor.Fprintf(&b, "%s %s\n", symbol, opts.Problem)
	}

	if len(opts.Suggestions) > 0 {
		yellow := color.New(color.FgYellow)
		if opts.NoColor {
			yellow.DisableColor()
		}
		b.WriteString("\n")
		yellow.Fprintf(&b, "   Did you mean: %s?\n", strings.Join(opts.Suggestions, ", "))
	}

	if len(opts.HelpCommands) > 0 {
		cyan := color.New(color.FgCyan)
		if opts.NoColor {
			cyan.DisableColor()
		}
		b.WriteString("\n")
		for _, cmd := range opts.HelpCommands {
			cyan.Fprintf(&b, "   → %s\n", cmd)
		}
	}

	return b.String()
}

func levelStyle(level Level) (header, body *color.Color, symbol string) {
	switch level {
	case LevelWarning:
		return color.New(color.FgYellow, color.Bold), color.New(color.FgYellow), "⚠️"
	case LevelInfo:
		return color.New(color.FgCyan, color.Bold), color.New(color.FgCyan), "ℹ️"
	default:
		return color.New(color.FgRed, color.Bold), color.New(color.FgRed), "❌"
	}
}

// WriteMessage writes a formatted message to w
func WriteMessage(w io.Writer, opts MessageOptions) {
	fmt.Fprint(w, FormatMessage(opts))
}

// FormatSuccess creates a success message
func FormatSuccess(message string, noColor bool) string {
	green := color.New(color.FgGreen, color.Bold)
	if noColor {
		green.DisableColor()
	}
	return green.Sprintf("✓ %s", message)
}

// WriteSuccess writes a success message to w
func WriteSuccess(w io.Writer, message string, noColor bool) {
	fmt.Fprintln(w, FormatSuccess(message, noColor))
}

// ConfigError reports an unusable configuration
func ConfigError(message string, noColor bool) string {
	return FormatMessage(MessageOptions{
		Level:   LevelError,
		Context: "configuration error",
		Problem: message,
		HelpCommands: []string{
			"Create a config file: querylint init",
			"Get help: querylint --help",
		},
		NoColor: noColor,
	})
}

// UnauthorizedWarning explains that checks ran without schema metadata
func UnauthorizedWarning(noColor bool) string {
	return FormatMessage(MessageOptions{
		Level:   LevelWarning,
		Context: "not authorized",
		Problem: "The schema service rejected the configured credentials; size checks were skipped.",
		HelpCommands: []string{
			"Set a token: export QUERYLINT_SCHEMA_TOKEN=...",
			"Check offline: querylint check --schema-dir <dir>",
		},
		NoColor: noColor,
	})
}

// UnknownTypeError reports a type name the schema service does not describe
func UnknownTypeError(name string, known []string, noColor bool) string {
	return FormatMessage(MessageOptions{
		Level:       LevelError,
		Context:     "unknown type",
		Problem:     fmt.Sprintf("The schema service does not describe '%s'.", name),
		Suggestions: SuggestNames(name, known, 3),
		HelpCommands: []string{
			"List known types: querylint cache types",
		},
		NoColor: noColor,
	})
}
