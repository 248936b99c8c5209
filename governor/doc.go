// Package governor bounds concurrent disk and decode work and tracks
// in-flight loads so they can be cancelled individually or all at once.
//
// A [Gate] is a counting semaphore whose capacity can be changed at runtime.
// A [Registry] maps cache keys to the cancellation [Handle] of the load
// currently running for that key; registering a new load for a key cancels
// the previous one.
package governor
