// Package memory keeps the conversation context handed to the model.
//
// Invariants:
// - A buffer records whole exchanges: one user entry followed by one assistant entry.
// - Load returns entries in the order they were saved.
// - Nothing leaves the process.
//
// Usage:
//
//	buf := memory.NewConversationBuffer("chat_history")
//	buf.SaveContext("hi", "hello!")
//	for _, e := range buf.Load() {
//		_ = e
//	}
package memory
