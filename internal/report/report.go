// Package report renders task outcomes, result trees and descriptor lists
// as tables, JSON, YAML or text templates.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"sigs.k8s.io/yaml"

	"github.com/giantswarm/suidriver/internal/api"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatText  Format = "text"
)

// Formats lists the accepted values of ParseFormat.
var Formats = []Format{FormatTable, FormatJSON, FormatYAML, FormatText}

// ParseFormat validates s. The empty string selects FormatTable.
func ParseFormat(s string) (Format, error) {
	if s == "" {
		return FormatTable, nil
	}
	for _, f := range Formats {
		if string(f) == strings.ToLower(s) {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q (want one of table, json, yaml, text)", s)
}

// DefaultTemplate is used for FormatText when no template is given.
const DefaultTemplate = `{{ .Outcome.TaskID }} {{ .Outcome.State }}{{ with .Outcome.ErrorKind }} ({{ . }}){{ end }} {{ verdict .Outcome.Passed }}
steps {{ .Outcome.Progress.StepsCompleted }}/{{ .Outcome.Progress.StepsTotal }}
{{- range .Steps }}
  {{ .Status | printf "%-7s" }} {{ .Suite }} / {{ .Case }} / {{ .Step }}
{{- end }}
{{- range .Outcome.Failures }}
  ! {{ .StepLabel }}: {{ .AssertionName }}{{ if .Messages }}: {{ join "; " .Messages }}{{ end }}
{{- end }}
{{- range .Outcome.FailedWithoutAssertions }}
  ! {{ . }} failed without assertions
{{- end }}
`

// Report is what gets rendered for one task.
type Report struct {
	Outcome api.TaskOutcome `json:"outcome"`
	Result  *api.ResultNode `json:"result,omitempty"`
}

// StepRow is one step of a result tree with its enclosing suite and case.
type StepRow struct {
	Suite    string        `json:"suite"`
	Case     string        `json:"case"`
	Step     string        `json:"step"`
	Status   api.Status    `json:"status"`
	Duration time.Duration `json:"duration"`
	Failures int           `json:"failures"`
}

// Steps flattens a result tree in execution order.
func Steps(root *api.ResultNode) []StepRow {
	var rows []StepRow
	if root == nil {
		return rows
	}
	for _, suite := range root.Children {
		for _, c := range suite.Children {
			for _, step := range c.Children {
				row := StepRow{
					Suite:    suite.Label,
					Case:     c.Label,
					Step:     step.Label,
					Status:   step.Status,
					Failures: len(step.Failures),
				}
				if !step.StartedAt.IsZero() && !step.EndedAt.IsZero() {
					row.Duration = step.EndedAt.Sub(step.StartedAt)
				}
				rows = append(rows, row)
			}
		}
	}
	return rows
}

// Renderer writes reports in one format.
type Renderer struct {
	Format Format
	// Color enables ANSI colors in tables.
	Color bool
	// Template overrides DefaultTemplate for FormatText.
	Template string
}

// Task renders one task report.
func (r Renderer) Task(w io.Writer, rep Report) error {
	switch r.Format {
	case FormatJSON:
		return writeJSON(w, rep)
	case FormatYAML:
		return writeYAML(w, rep)
	case FormatText:
		return r.writeTemplate(w, rep)
	case FormatTable, "":
		return r.writeTaskTable(w, rep)
	default:
		return fmt.Errorf("unknown output format %q", r.Format)
	}
}

// Tasks renders several reports. Tables and templates are separated by a
// blank line; JSON and YAML produce a single list.
func (r Renderer) Tasks(w io.Writer, reps []Report) error {
	switch r.Format {
	case FormatJSON:
		return writeJSON(w, reps)
	case FormatYAML:
		return writeYAML(w, reps)
	}
	for i, rep := range reps {
		if i > 0 {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		if err := r.Task(w, rep); err != nil {
			return err
		}
	}
	return nil
}

// Descriptors renders a descriptor list.
func (r Renderer) Descriptors(w io.Writer, descs []*api.ProjectDescriptor) error {
	if descs == nil {
		descs = []*api.ProjectDescriptor{}
	}
	switch r.Format {
	case FormatJSON:
		return writeJSON(w, descs)
	case FormatYAML:
		return writeYAML(w, descs)
	case FormatText:
		for _, d := range descs {
			if _, err := fmt.Fprintf(w, "%s\t%s\t%s\n", d.ID, d.Label, d.LocalPath); err != nil {
				return err
			}
		}
		return nil
	case FormatTable, "":
		return r.writeDescriptorTable(w, descs)
	default:
		return fmt.Errorf("unknown output format %q", r.Format)
	}
}

func (r Renderer) writeTemplate(w io.Writer, rep Report) error {
	src := r.Template
	if src == "" {
		src = DefaultTemplate
	}
	tmpl, err := template.New("report").Funcs(sprig.TxtFuncMap()).Funcs(template.FuncMap{
		"verdict": verdict,
	}).Parse(src)
	if err != nil {
		return fmt.Errorf("invalid report template: %w", err)
	}
	data := struct {
		Report
		Steps []StepRow
	}{Report: rep, Steps: Steps(rep.Result)}
	if err := tmpl.Execute(w, data); err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}
	return nil
}

func (r Renderer) writeTaskTable(w io.Writer, rep Report) error {
	t := r.newTable(w)
	t.SetTitle("%s  %s  %s", rep.Outcome.TaskID, rep.Outcome.State, verdict(rep.Outcome.Passed))
	t.AppendHeader(table.Row{"SUITE", "CASE", "STEP", "STATUS", "DURATION", "FAILURES"})

	rows := Steps(rep.Result)
	for _, row := range rows {
		t.AppendRow(table.Row{
			row.Suite, row.Case, row.Step,
			r.status(row.Status),
			row.Duration.Round(time.Millisecond),
			row.Failures,
		})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, AutoMerge: true},
		{Number: 2, AutoMerge: true},
	})

	p := rep.Outcome.Progress
	footer := fmt.Sprintf("%d/%d steps", p.StepsCompleted, p.StepsTotal)
	if rep.Outcome.ErrorKind != "" {
		footer += "  " + string(rep.Outcome.ErrorKind)
	}
	t.AppendFooter(table.Row{"", "", "", "", "", footer})
	t.Render()

	if len(rep.Outcome.Failures) == 0 && len(rep.Outcome.FailedWithoutAssertions) == 0 {
		return nil
	}
	ft := r.newTable(w)
	ft.SetTitle("Failures")
	ft.AppendHeader(table.Row{"STEP", "ASSERTION", "MESSAGES"})
	for _, f := range rep.Outcome.Failures {
		ft.AppendRow(table.Row{f.StepLabel, f.AssertionName, strings.Join(f.Messages, "\n")})
	}
	for _, c := range rep.Outcome.FailedWithoutAssertions {
		ft.AppendRow(table.Row{c, "", "failed without assertions"})
	}
	ft.Render()
	return nil
}

func (r Renderer) writeDescriptorTable(w io.Writer, descs []*api.ProjectDescriptor) error {
	t := r.newTable(w)
	t.AppendHeader(table.Row{"ID", "LABEL", "SUITES", "CASES", "STEPS", "TAGS", "PATH"})
	for _, d := range descs {
		t.AppendRow(table.Row{
			d.ID, d.Label, d.SuiteCount, d.CaseCount, d.StepCount,
			strings.Join(d.TagIDs, ","), d.LocalPath,
		})
	}
	t.AppendFooter(table.Row{"", fmt.Sprintf("%d descriptors", len(descs))})
	t.Render()
	return nil
}

func (r Renderer) newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func (r Renderer) status(s api.Status) string {
	if !r.Color {
		return string(s)
	}
	switch s {
	case api.StatusPassed:
		return text.FgGreen.Sprint(s)
	case api.StatusFailed:
		return text.FgRed.Sprint(s)
	case api.StatusError:
		return text.FgHiRed.Sprint(s)
	default:
		return text.FgYellow.Sprint(s)
	}
}

func verdict(passed bool) string {
	if passed {
		return "passed"
	}
	return "not passed"
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
