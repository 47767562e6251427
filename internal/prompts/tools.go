package prompts

// MCPCommandDescription describes the raw gateway command tool.
const MCPCommandDescription = `Send a JSON-RPC command to the MCP gateway. ` +
	`"ping" checks liveness, "list" returns the tool catalog, "init" opens a session ` +
	`and reports its id, "call" runs the tool named in "tool" with the "args" object.`

// RegistryTaskDescription describes the registry task tool.
const RegistryTaskDescription = `Run a registry administration task given as one command line: ` +
	`a category, a task and key=value fields, e.g. "service add config=server.json". ` +
	`Use "help" or "help <category>" to list tasks and fields.`
