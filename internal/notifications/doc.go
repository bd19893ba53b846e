// Package notifications delivers task events via pluggable notifiers.
//
// Two transports exist: a per-task webhook that POSTs the final task status
// to the callback_url supplied at submission, and an optional ntfy topic for
// operator alerts. NewService fans an event out to whichever are configured
// and degrades to a no-op when neither is.
package notifications
