// Package core provides the foundational domain types, interfaces and execution
// contexts used by Legion. It defines the core abstractions for:
//
//   - Participants (agents, human operators and scripted mocks)
//   - Conversations (directional, append-only message logs with mutual exclusion)
//   - Sessions (containers routing participant pairs to conversations)
//   - RunContext (per-call execution scope carrying depth, chain and limits)
//   - EventBus (synchronous fan-out of engine events to subscribers)
//   - Pluggable collaborators for persistence, behavior dispatch and
//     authorization
//
// The package intentionally keeps implementation concerns (file storage,
// runtime behaviors, authorization policy tables, provider adapters) out of
// scope, exposing small interfaces so higher layers can be wired explicitly
// rather than through ambient singletons.
package core
