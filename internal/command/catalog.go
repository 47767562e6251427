package command

import (
	"fmt"
	"slices"
	"strings"
)

// Scripts invoked by the default catalog, relative to the task working
// directory.
const (
	serviceScript    = "./cli/service_mgmt.sh"
	userScript       = "./cli/user_mgmt.sh"
	importScript     = "./cli/import_from_anthropic_registry.sh"
	credsScript      = "./credentials-provider/generate_creds.sh"
	defaultHealthURL = "http://localhost/health"
)

// Command describes an external process: a program and its arguments.
// It is never run through a shell.
type Command struct {
	Program string
	Args    []string
}

// Field is one named argument of a task.
type Field struct {
	Name        string
	Description string
	Required    bool
	Default     string
}

// TaskDef describes one task in a category. Build maps validated field
// values to the external command that performs the task.
type TaskDef struct {
	Key         string
	Description string
	Fields      []Field
	Build       func(values map[string]string) Command
}

// Usage returns a one-line synopsis, e.g. "add config=<value>".
func (t *TaskDef) Usage() string {
	parts := []string{t.Key}
	for _, f := range t.Fields {
		switch {
		case f.Required:
			parts = append(parts, f.Name+"=<value>")
		case f.Default != "":
			parts = append(parts, fmt.Sprintf("[%s=%s]", f.Name, f.Default))
		default:
			parts = append(parts, "["+f.Name+"=<value>]")
		}
	}
	return strings.Join(parts, " ")
}

func (t *TaskDef) field(name string) (Field, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Category groups related tasks.
type Category struct {
	Name        string
	Description string
	Tasks       []TaskDef
}

// Task returns the task with the given key.
func (c *Category) Task(key string) (*TaskDef, bool) {
	for i := range c.Tasks {
		if c.Tasks[i].Key == key {
			return &c.Tasks[i], true
		}
	}
	return nil, false
}

// TaskKeys returns the task keys in declaration order.
func (c *Category) TaskKeys() []string {
	keys := make([]string, len(c.Tasks))
	for i, t := range c.Tasks {
		keys[i] = t.Key
	}
	return keys
}

// Catalog is the static table of task categories.
type Catalog struct {
	categories []Category
}

// NewCatalog builds a catalog from the given categories.
func NewCatalog(categories ...Category) *Catalog {
	return &Catalog{categories: categories}
}

// Categories returns every category in declaration order.
func (c *Catalog) Categories() []Category {
	return c.categories
}

// Category returns the named category.
func (c *Catalog) Category(name string) (*Category, bool) {
	for i := range c.categories {
		if c.categories[i].Name == name {
			return &c.categories[i], true
		}
	}
	return nil, false
}

// Names returns the category names in declaration order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.Name
	}
	return names
}

// FieldError reports an invalid task argument.
type FieldError struct {
	Category string
	Task     string
	Field    string
	Reason   string
}

func (e *FieldError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s %s: %s", e.Category, e.Task, e.Reason)
	}
	return fmt.Sprintf("%s %s: field %q: %s", e.Category, e.Task, e.Field, e.Reason)
}

// Prepared is a task whose arguments have been validated and whose
// external command has been built.
type Prepared struct {
	Category string
	Key      string
	Values   map[string]string
	Command  Command
}

// Prepare validates t against the catalog, fills defaults, and builds
// the command. Arguments are key=value pairs; a bare token fills the
// next field that has not been set yet, in declaration order.
func (c *Catalog) Prepare(t Task) (*Prepared, error) {
	cat, ok := c.Category(t.Category)
	if !ok {
		return nil, fmt.Errorf("unknown task category %q (available: %s)",
			t.Category, strings.Join(c.Names(), ", "))
	}
	def, ok := cat.Task(t.Key)
	if !ok {
		return nil, fmt.Errorf("unknown %s task %q (available: %s)",
			cat.Name, t.Key, strings.Join(cat.TaskKeys(), ", "))
	}

	fieldErr := func(field, reason string) error {
		return &FieldError{Category: cat.Name, Task: def.Key, Field: field, Reason: reason}
	}

	values := make(map[string]string, len(def.Fields))
	var positional []string
	for _, arg := range t.RawArgs {
		name, value, ok := strings.Cut(arg, "=")
		if !ok {
			positional = append(positional, arg)
			continue
		}
		if name == "" {
			return nil, fieldErr("", fmt.Sprintf("malformed argument %q", arg))
		}
		if _, known := def.field(name); !known {
			return nil, fieldErr(name, "unknown field")
		}
		values[name] = value
	}

	for _, arg := range positional {
		idx := slices.IndexFunc(def.Fields, func(f Field) bool {
			_, set := values[f.Name]
			return !set
		})
		if idx < 0 {
			return nil, fieldErr("", fmt.Sprintf("unexpected argument %q", arg))
		}
		values[def.Fields[idx].Name] = arg
	}

	for _, f := range def.Fields {
		if v, set := values[f.Name]; set && v != "" {
			continue
		}
		if f.Required {
			return nil, fieldErr(f.Name, "required")
		}
		if f.Default != "" {
			values[f.Name] = f.Default
		}
	}

	return &Prepared{
		Category: cat.Name,
		Key:      def.Key,
		Values:   values,
		Command:  def.Build(values),
	}, nil
}

// DefaultCatalog returns the registry administration tasks.
func DefaultCatalog() *Catalog {
	return NewCatalog(
		Category{
			Name:        "service",
			Description: "Register and manage MCP servers in the registry",
			Tasks: []TaskDef{
				{
					Key:         "list",
					Description: "List registered services",
					Build:       script(serviceScript, "list"),
				},
				{
					Key:         "add",
					Description: "Register a service from a JSON config file",
					Fields:      []Field{{Name: "config", Description: "path to the service config JSON", Required: true}},
					Build:       script(serviceScript, "add", "config"),
				},
				{
					Key:         "remove",
					Description: "Remove a service",
					Fields:      []Field{{Name: "path", Description: "service path, e.g. /fininfo", Required: true}},
					Build:       script(serviceScript, "remove", "path"),
				},
				{
					Key:         "toggle",
					Description: "Enable or disable a service",
					Fields:      []Field{{Name: "path", Description: "service path", Required: true}},
					Build:       script(serviceScript, "toggle", "path"),
				},
				{
					Key:         "monitor",
					Description: "Show health for one or all services",
					Fields:      []Field{{Name: "path", Description: "service path; all services when empty"}},
					Build:       script(serviceScript, "monitor", "path"),
				},
				{
					Key:         "test",
					Description: "Run a search test against a service",
					Fields:      []Field{{Name: "path", Description: "service path", Required: true}},
					Build:       script(serviceScript, "test", "path"),
				},
				{
					Key:         "add-to-groups",
					Description: "Add a service to scope groups",
					Fields: []Field{
						{Name: "path", Description: "service path", Required: true},
						{Name: "groups", Description: "comma-separated group names", Required: true},
					},
					Build: script(serviceScript, "add-to-groups", "path", "groups"),
				},
			},
		},
		Category{
			Name:        "user",
			Description: "Manage identity provider users and groups",
			Tasks: []TaskDef{
				{
					Key:         "list",
					Description: "List users",
					Build:       script(userScript, "list-users"),
				},
				{
					Key:         "create-m2m",
					Description: "Create a machine-to-machine service account",
					Fields: []Field{
						{Name: "name", Description: "client name", Required: true},
						{Name: "groups", Description: "comma-separated group names", Required: true},
						{Name: "description", Description: "account description"},
					},
					Build: flags(userScript, "create-m2m", "name", "groups", "description"),
				},
				{
					Key:         "create-human",
					Description: "Create a human user",
					Fields: []Field{
						{Name: "username", Required: true},
						{Name: "email", Required: true},
						{Name: "first-name", Required: true},
						{Name: "last-name", Required: true},
						{Name: "groups", Description: "comma-separated group names", Required: true},
						{Name: "password", Description: "initial password; generated when empty"},
					},
					Build: flags(userScript, "create-human", "username", "email", "first-name", "last-name", "groups", "password"),
				},
				{
					Key:         "delete",
					Description: "Delete a user",
					Fields:      []Field{{Name: "username", Required: true}},
					Build:       flags(userScript, "delete-user", "username"),
				},
				{
					Key:         "list-groups",
					Description: "List groups",
					Build:       script(userScript, "list-groups"),
				},
			},
		},
		Category{
			Name:        "import",
			Description: "Import servers from external registries",
			Tasks: []TaskDef{
				{
					Key:         "anthropic",
					Description: "Import servers from the Anthropic MCP registry",
					Fields: []Field{
						{Name: "servers-file", Description: "file listing servers to import"},
						{Name: "dry-run", Description: "show what would be imported", Default: "false"},
					},
					Build: func(v map[string]string) Command {
						var args []string
						if isTrue(v["dry-run"]) {
							args = append(args, "--dry-run")
						}
						if f := v["servers-file"]; f != "" {
							args = append(args, "--import-list", f)
						}
						return Command{Program: importScript, Args: args}
					},
				},
			},
		},
		Category{
			Name:        "diagnostic",
			Description: "Credentials and connectivity checks",
			Tasks: []TaskDef{
				{
					Key:         "creds",
					Description: "Regenerate credentials",
					Fields:      []Field{{Name: "provider", Description: "identity provider or all", Default: "all"}},
					Build: func(v map[string]string) Command {
						if p := v["provider"]; p != "all" {
							return Command{Program: credsScript, Args: []string{"--provider", p}}
						}
						return Command{Program: credsScript}
					},
				},
				{
					Key:         "test-gateway",
					Description: "Ping the gateway with the Python reference client",
					Fields:      []Field{{Name: "url", Description: "gateway MCP endpoint"}},
					Build: func(v map[string]string) Command {
						args := []string{"run", "python", "cli/mcp_client.py"}
						if u := v["url"]; u != "" {
							args = append(args, "--url", u)
						}
						return Command{Program: "uv", Args: append(args, "ping")}
					},
				},
				{
					Key:         "health",
					Description: "Query the registry health endpoint",
					Fields:      []Field{{Name: "url", Default: defaultHealthURL}},
					Build: func(v map[string]string) Command {
						return Command{Program: "curl", Args: []string{"-sS", "--fail-with-body", v["url"]}}
					},
				},
			},
		},
	)
}

// script builds "<program> <verb> <field values...>", skipping empty
// optional values.
func script(program, verb string, fields ...string) func(map[string]string) Command {
	return func(v map[string]string) Command {
		args := []string{verb}
		for _, f := range fields {
			if val := v[f]; val != "" {
				args = append(args, val)
			}
		}
		return Command{Program: program, Args: args}
	}
}

// flags builds "<program> <verb> --<field> <value>..." for set fields.
func flags(program, verb string, fields ...string) func(map[string]string) Command {
	return func(v map[string]string) Command {
		args := []string{verb}
		for _, f := range fields {
			if val := v[f]; val != "" {
				args = append(args, "--"+f, val)
			}
		}
		return Command{Program: program, Args: args}
	}
}

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}
