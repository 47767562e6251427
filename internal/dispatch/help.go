package dispatch

import (
	"fmt"
	"strings"

	"github.com/nugget/mcpgw-cli/internal/command"
)

var gatewayHelp = [][2]string{
	{"ping", "check that the gateway is responsive"},
	{"list", "list the gateway's tools"},
	{"init", "open a session and show its id"},
	{"call tool=<name> args=<json>", "call a gateway tool"},
	{"help [category]", "show this help, or the tasks in a category"},
}

// help lists the commands, or the tasks of one category.
func (d *Dispatcher) help(topic string) Result {
	if topic != "" {
		cat, ok := d.catalog.Category(topic)
		if !ok {
			return Result{
				Lines: []string{fmt.Sprintf("no help for %q; categories: %s",
					topic, strings.Join(d.catalog.Names(), ", "))},
				IsError: true,
			}
		}
		return Result{Lines: categoryHelp(cat)}
	}

	lines := []string{fmt.Sprintf("Commands (prefix with %s; anything else is sent to the assistant):", command.Prefix)}
	for _, h := range gatewayHelp {
		lines = append(lines, fmt.Sprintf("  %-30s %s", h[0], h[1]))
	}
	lines = append(lines, "", "Task categories (<category> <task> key=value ...):")
	for _, cat := range d.catalog.Categories() {
		lines = append(lines, fmt.Sprintf("  %-12s %s", cat.Name, cat.Description))
	}
	return Result{Lines: lines}
}

func categoryHelp(cat *command.Category) []string {
	lines := []string{fmt.Sprintf("%s: %s", cat.Name, cat.Description)}
	for i := range cat.Tasks {
		def := &cat.Tasks[i]
		lines = append(lines, fmt.Sprintf("  %s %s", cat.Name, def.Usage()), "      "+def.Description)
		for _, f := range def.Fields {
			if f.Description != "" {
				lines = append(lines, fmt.Sprintf("      %s: %s", f.Name, f.Description))
			}
		}
	}
	return lines
}

// CatalogSummary renders one line per category listing its task keys.
func CatalogSummary(catalog *command.Catalog) string {
	var b strings.Builder
	for _, cat := range catalog.Categories() {
		fmt.Fprintf(&b, "- %s: %s\n", cat.Name, strings.Join(cat.TaskKeys(), ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}
