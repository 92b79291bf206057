/*
Package session implements per-contact serialization and session lookup.

It guarantees that inbound events of one contact are processed one at a time,
integrating an in-process reference-counted lock table with an optional
distributed lock so several replicas can share one session store.
*/
package session
