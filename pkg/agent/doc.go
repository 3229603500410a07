// Package agent answers chat input with an LLM and a tool loop.
//
// Invariants:
// - Tool calls route through toolexecutor only; tool failures go back to the model as tool results.
// - Provider failures are returned as *ProviderError after retryable errors are retried with backoff.
// - Only completed exchanges are written to the memory buffer.
//
// Usage:
//
//	provider, _ := (&agent.ProviderFactory{}).NewProvider(agent.ProviderConfig{Provider: "groq", APIKey: key})
//	runner, _ := agent.NewRunner(agent.Config{
//		Provider:     provider,
//		ToolExecutor: exec,
//		Memory:       memory.NewConversationBuffer("chat_history"),
//		Agent:        agent.DefaultConfig(),
//	})
//	reply, _ := runner.Respond(ctx, "hello", nil)
//	_ = reply
package agent
