/*
Package observability provides monitoring tools for the formbridge bridge.

It turns domain.LifecycleHooks into prometheus metrics and structured log
records, and composes several hook sets into one.
*/
package observability
