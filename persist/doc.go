// Package persist sends answers to remote stores without making a
// session wait.
//
// A Scheduler drains session.Intents through a set of worker shards.
// Intents with the same key (see session.Intent.Key) always land on
// the same shard, so saves of the same answer arrive in the order
// they were issued.  Saves of different answers can run in parallel.
//
// Failures are logged and counted.  They are never retried and never
// reported to the session.
package persist
