package main

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/fatih/color"

	"github.com/nugget/mcpgw-cli/internal/dispatch"
	"github.com/nugget/mcpgw-cli/internal/usage"
)

// printResult writes a dispatch result to stdout and maps an error
// result onto errFailed.
func (a *app) printResult(res dispatch.Result) error {
	if a.opts.json {
		if err := writeJSON(a.stdout, res); err != nil {
			return err
		}
	} else {
		errColor := color.New(color.FgRed)
		if !isTerminal(a.stdout) {
			errColor.DisableColor()
		}
		for _, line := range res.Lines {
			if res.IsError {
				errColor.Fprintln(a.stdout, line)
			} else {
				fmt.Fprintln(a.stdout, line)
			}
		}
	}
	if res.IsError {
		return errFailed
	}
	return nil
}

func (a *app) printUsage(window time.Duration, total *usage.Summary, byModel map[string]*usage.Summary) error {
	if a.opts.json {
		return writeJSON(a.stdout, struct {
			Window  string                    `json:"window"`
			Total   *usage.Summary            `json:"total"`
			ByModel map[string]*usage.Summary `json:"byModel"`
		}{window.String(), total, byModel})
	}

	bold := color.New(color.Bold)
	if !isTerminal(a.stdout) {
		bold.DisableColor()
	}
	bold.Fprintf(a.stdout, "Usage over the last %s\n", window)
	fmt.Fprintf(a.stdout, "  %d model calls in %d turns, %d input / %d output tokens\n",
		total.TotalRecords, total.TotalTurns, total.TotalInputTokens, total.TotalOutputTokens)

	models := make([]string, 0, len(byModel))
	for m := range byModel {
		models = append(models, m)
	}
	slices.Sort(models)
	for _, m := range models {
		s := byModel[m]
		fmt.Fprintf(a.stdout, "  %-32s %6d calls %10d in %10d out\n",
			m, s.TotalRecords, s.TotalInputTokens, s.TotalOutputTokens)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
