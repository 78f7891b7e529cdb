/*
Package observability turns agent lifecycle hooks into Prometheus metrics and
structured log lines.

Both are plain domain.LifecycleHooks values; combine them with
domain.MergeHooks and pass the result to the agent.
*/
package observability
