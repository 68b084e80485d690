// Package review holds the review engine: creating and updating records, and
// the read-only views over them (due queue, stats, weak topics and import
// recommendations). Everything here is a pure function of its arguments; the
// caller supplies records, events and the current time.
package review
