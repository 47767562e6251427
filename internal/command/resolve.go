package command

import (
	"fmt"
	"strings"
)

// Resolver maps operator input to invocations using a task catalog.
type Resolver struct {
	catalog *Catalog
}

// NewResolver creates a resolver. A nil catalog uses DefaultCatalog.
func NewResolver(catalog *Catalog) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Resolver{catalog: catalog}
}

// Catalog returns the resolver's task catalog.
func (r *Resolver) Catalog() *Catalog {
	return r.catalog
}

// Resolve parses one line of input. It reports ok=false when the line is
// free text that should go to the agent instead. Input starting with
// [Prefix] always resolves, falling back to Unknown. Input without the
// prefix resolves only when it matches a command form exactly.
func (r *Resolver) Resolve(line string) (inv Invocation, ok bool) {
	text := strings.TrimSpace(line)
	if text == "" {
		return nil, false
	}

	prefixed := strings.HasPrefix(text, Prefix)
	if prefixed {
		text = strings.TrimSpace(strings.TrimPrefix(text, Prefix))
	}

	tokens, err := Tokenize(text)
	if err != nil {
		if prefixed {
			return Unknown{Message: fmt.Sprintf("cannot parse command: %v", err)}, true
		}
		return nil, false
	}
	if len(tokens) == 0 {
		return Help{}, true
	}

	inv, exact := r.match(tokens)
	if prefixed {
		return inv, true
	}
	if exact {
		return inv, true
	}
	return nil, false
}

// match resolves tokens and reports whether they form an exact command,
// i.e. one that is unambiguous even without the prefix.
func (r *Resolver) match(tokens []string) (Invocation, bool) {
	head := strings.ToLower(tokens[0])
	rest := tokens[1:]

	switch head {
	case "help", "?":
		if len(rest) > 0 {
			return Help{Topic: strings.ToLower(rest[0])}, false
		}
		return Help{}, true
	case "ping":
		return bare(Ping{}, head, rest)
	case "list":
		return bare(List{}, head, rest)
	case "init":
		return bare(Init{}, head, rest)
	case "call":
		return parseCall(rest)
	}

	cat, ok := r.catalog.Category(head)
	if !ok {
		return Unknown{Message: fmt.Sprintf("unknown command %q; type %shelp for available commands", tokens[0], Prefix)}, false
	}
	if len(rest) == 0 {
		return Help{Topic: cat.Name}, false
	}

	key := strings.ToLower(rest[0])
	if _, ok := cat.Task(key); !ok {
		return Unknown{Message: fmt.Sprintf("unknown %s task %q (available: %s)",
			cat.Name, rest[0], strings.Join(cat.TaskKeys(), ", "))}, false
	}

	args := rest[1:]
	exact := true
	for _, a := range args {
		if !strings.Contains(a, "=") {
			exact = false
			break
		}
	}
	return Task{Category: cat.Name, Key: key, RawArgs: args}, exact
}

func bare(inv Invocation, name string, rest []string) (Invocation, bool) {
	if len(rest) > 0 {
		return Unknown{Message: fmt.Sprintf("%s takes no arguments", name)}, false
	}
	return inv, true
}

// parseCall accepts "tool=<name> [args=<json>]" or "<name> [json...]".
// The call is exact only in the keyed form.
func parseCall(rest []string) (Invocation, bool) {
	var call Call
	keyed := false
	var positional []string

	for _, tok := range rest {
		name, value, ok := strings.Cut(tok, "=")
		switch {
		case ok && name == "tool":
			call.Tool = value
			keyed = true
		case ok && name == "args":
			call.ArgsJSON = value
		default:
			positional = append(positional, tok)
		}
	}

	if !keyed && len(positional) > 0 {
		call.Tool = positional[0]
		positional = positional[1:]
	}
	if call.ArgsJSON == "" && len(positional) > 0 {
		call.ArgsJSON = strings.Join(positional, " ")
		positional = nil
	}

	return call, keyed && len(positional) == 0
}
