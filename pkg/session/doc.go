// Package session holds per-browser chat state in memory.
//
// Invariants:
// - Each Session owns exactly one Transcript.
// - Transcript appends are monotonic; entries are never reordered or mutated.
// - Turns within one Session are serialized by its turn lock.
// - Nothing is persisted: sessions end on idle expiry or process exit.
//
// Usage:
//
//	mgr := session.NewManager(time.Hour)
//	sess, _, _ := mgr.GetOrCreate(cookieValue)
//	sess.Append(session.NewMessage(session.RoleUser, "hello"))
//	_ = sess.Messages()
package session
