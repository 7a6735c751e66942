package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
)

// formatter writes v to w in one output format.
type formatter func(w io.Writer, v any) error

var formatters = map[string]formatter{
	formatText: writeText,
	formatJSON: writeJSON,
	formatYAML: writeYAML,
}

func formatNames() []string {
	names := make([]string, 0, len(formatters))
	for name := range formatters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// textRenderer is implemented by views with a human-readable layout.
type textRenderer interface {
	renderText(w io.Writer) error
}

// render writes v to the command's output in the selected format.
func render(cmd *cobra.Command, v any) error {
	f, ok := formatters[flags.output]
	if !ok {
		return usageError{fmt.Errorf("unknown output format %q", flags.output)}
	}
	return f(cmd.OutOrStdout(), v)
}

func writeText(w io.Writer, v any) error {
	if r, ok := v.(textRenderer); ok {
		return r.renderText(w)
	}
	_, err := fmt.Fprintln(w, v)
	return err
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// table returns a tabwriter for column output. Callers must Flush.
func table(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}
