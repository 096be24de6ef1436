package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("45"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
)

const rule = "============================================================"

// render writes v in the selected output format. text draws the human form.
func (a *app) render(v any, text func(w io.Writer)) error {
	switch a.output {
	case "json":
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding json: %w", err)
		}
		_, err = fmt.Fprintln(a.out, string(b))
		return err
	case "yaml":
		return writeYAML(a.out, v)
	default:
		text(a.out)
		return nil
	}
}

// writeYAML renders v with its JSON field names.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return fmt.Errorf("encoding yaml: %w", err)
	}
	return enc.Close()
}

// status prints progress lines in text mode only, so json and yaml output
// stays machine readable.
func (a *app) status(format string, args ...any) {
	if a.output != "text" {
		return
	}
	fmt.Fprintf(a.out, format+"\n", args...)
}

func header(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render("=== "+title+" ==="))
}

func field(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%s %v\n", labelStyle.Render(label+":"), value)
}

func success(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, okStyle.Render("✅ "+fmt.Sprintf(format, args...)))
}

func failure(w io.Writer, format string, args ...any) {
	fmt.Fprintln(w, errStyle.Render("❌ "+fmt.Sprintf(format, args...)))
}

func separator(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, dimStyle.Render(rule))
}
