/*
Package session manages form drafts for dashboard sessions.

The Manager serializes every read-modify-write on a draft with a per-key mutex
(reference counted, so idle keys are dropped) and, when configured, a distributed
lock shared by all replicas. Each persisted change bumps the draft version and
produces a DraftDiff that can be pushed to connected clients.
*/
package session
