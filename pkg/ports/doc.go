/*
Package ports defines the driven ports (interfaces) for the chatflow engine.

These interfaces decouple the engine from external implementations, allowing
it to work with various flow sources, session stores and message providers.

# Key Interfaces

  - FlowProvider: Looks up flows by trigger keyword or id (e.g., from Loam or Memory).
  - SessionStore: Persists sessions and enforces one live session per contact.
  - MessageSender: Delivers outbound messages to the messaging provider.
  - MessageLogger / Notifier: Audit log and real-time fan-out of sent messages.
  - DistributedLocker: Provides distributed locking for handling concurrent contact access.
*/
package ports
