// Package outbox provides SQLite-backed durable storage for records waiting to
// be mirrored to the remote spreadsheet.
//
// The outbox decouples registration from the remote call: the registry only
// needs the local record log to succeed, while the mirror drains this queue
// in the background and retries failed deliveries.
//
// # Messages
//
//   - One message per record id (UNIQUE(record_id)); enqueueing the same record
//     twice returns the existing message.
//   - Message ids are UUIDv7, time-sortable, and are sent to the remote side as
//     an idempotency key.
//   - Pending messages are always read ORDER BY record_id ASC, so rows reach
//     the spreadsheet in registration order.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
package outbox
