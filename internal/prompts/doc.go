// Package prompts contains the model-facing text used by the agent.
//
// Prompt text is Go code rather than config files because it is program logic:
// templates use fmt.Sprintf interpolation, benefit from compile-time embedding,
// and can be validated by tests.
//
// Convention: each prompt category gets its own file (system.go, tools.go,
// agent.go) with an exported function or constant for each prompt.
package prompts
