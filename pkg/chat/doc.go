// Package chat drives one conversation turn and bootstraps the agent behind a session.
//
// Invariants:
// - Empty input appends nothing and reaches no agent.
// - Every appended user message is followed by exactly one assistant message.
// - Agent failures and panics become "Error: ..." assistant messages; Turn never fails.
// - A session without a credential has no agent, tool executor or memory.
//
// Usage:
//
//	b := chat.NewBootstrapper(chat.BootstrapConfig{Model: cfg.Model})
//	if err := b.Bootstrap(ctx, sess, apiKey); err != nil {
//		// ask for the credential again
//	}
//	reply, _ := chat.Turn(ctx, sess, "What's the weather in Tokyo?")
//	_ = reply
package chat
