// Package notifier delivers due reminders to their owners.
//
// Dispatch only enqueues; a small worker pool drains the queue under a shared
// token-bucket limiter and retries transient send failures with jittered
// exponential backoff. The outcome of every accepted job is reported exactly
// once through the done callback handed to Dispatch, which is how the
// scheduler learns whether to mark a reminder sent or try again next tick.
//
// Delivery goes through a transport.Sender, so the pipeline does not depend on
// a specific messaging platform.
package notifier
