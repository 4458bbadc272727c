// Package reconcile decides how a batch of calendar events should be cleaned
// up: which records describe the same occurrence and fold into one canonical
// event, and which stale records move into the current week or are dropped
// because their recurring series has ended.
//
// Everything here is a pure function of its inputs. The current instant is
// always passed in, nothing reads the system clock, and input records are
// never mutated. Callers apply the returned plans to their own store.
package reconcile
