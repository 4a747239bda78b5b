package ui

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf16"

	"github.com/fatih/color"

	"github.com/querylint/querylint/internal/tooling"
)

// WriteDiagnostics prints diagnostics for one file in compiler style, each
// followed by the offending source line with the range underlined.
//
//	account.graphql:3:5: info [oversized-field] This field's value could ...
//	    Notes__c { value }
//	    ^^^^^^^^
func WriteDiagnostics(w io.Writer, path, content string, diagnostics []tooling.Diagnostic, noColor bool) {
	lines := strings.Split(content, "\n")

	location := color.New(color.Bold)
	code := color.New(color.FgHiBlack)
	marker := color.New(color.FgGreen)
	if noColor {
		location.DisableColor()
		code.DisableColor()
		marker.DisableColor()
	}

	for _, d := range diagnostics {
		start := d.Range.Start
		location.Fprintf(w, "%s:%d:%d:", path, start.Line+1, start.Character+1)
		fmt.Fprintf(w, " %s ", severityLabel(d.Severity, noColor))
		if d.Code != "" {
			code.Fprintf(w, "[%s] ", d.Code)
		}
		fmt.Fprintln(w, d.Message)

		if start.Line >= len(lines) {
			continue
		}
		line := []rune(strings.TrimRight(lines[start.Line], "\r"))
		fmt.Fprintf(w, "    %s\n", string(line))
		marker.Fprintf(w, "    %s\n", underline(line, d.Range))
	}
}

// underline builds the marker line for r, keeping tabs so the carets align
// with the printed source.
func underline(line []rune, r tooling.Range) string {
	from := runeIndex(line, r.Start.Character)
	to := len(line)
	if r.End.Line == r.Start.Line {
		to = runeIndex(line, r.End.Character)
	}

	var b strings.Builder
	for _, ch := range line[:from] {
		if ch == '\t' {
			b.WriteRune('\t')
		} else {
			b.WriteRune(' ')
		}
	}
	b.WriteString(strings.Repeat("^", max(to-from, 1)))
	return b.String()
}

// runeIndex converts a column in UTF-16 units into an index into line
func runeIndex(line []rune, units int) int {
	n := 0
	for i, ch := range line {
		if n >= units {
			return i
		}
		n += utf16.RuneLen(ch)
	}
	return len(line)
}

func severityLabel(severity tooling.DiagnosticSeverity, noColor bool) string {
	var c *color.Color
	switch severity {
	case tooling.DiagnosticSeverityError:
		c = color.New(color.FgRed, color.Bold)
	case tooling.DiagnosticSeverityWarning:
		c = color.New(color.FgYellow, color.Bold)
	default:
		c = color.New(color.FgCyan, color.Bold)
	}
	if noColor {
		c.DisableColor()
	}
	return c.Sprint(severity.String())
}

// Summary formats the closing line of a check run
func Summary(files, problems int, noColor bool) string {
	if problems == 0 {
		return FormatSuccess(fmt.Sprintf("%d %s checked, no problems found", files, plural(files, "file", "files")), noColor)
	}
	yellow := color.New(color.FgYellow, color.Bold)
	if noColor {
		yellow.DisableColor()
	}
	return yellow.Sprintf("%d %s in %d %s", problems, plural(problems, "problem", "problems"), files, plural(files, "file", "files"))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
