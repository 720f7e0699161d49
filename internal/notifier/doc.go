// Package notifier delivers post lifecycle notifications (published,
// scheduled, failed) to user-facing sinks.
//
// Delivery is best-effort and asynchronous: a bounded queue feeds worker
// goroutines that rate-limit, dedup, and retry sends. The dispatch engine
// never blocks on, or fails because of, a notification.
//
// # Sinks
//
// The service delegates delivery to Sink implementations (log output,
// Telegram push). This keeps formatting and throttling centralized while
// letting callers emit notifications without depending on a specific
// delivery channel.
//
// # History
//
// For the notification-center surface, the service keeps a bounded in-memory
// history of recent notifications with read/unread tracking.
package notifier
