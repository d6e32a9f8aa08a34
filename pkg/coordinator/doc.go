// Package coordinator implements the cross-domain portfolio coordinator.
//
// A portfolio deployment runs in four stages. First, the dependency
// graph is built from each domain's explicit dependencies and its
// shared-resource declarations (a domain that shares a database or a
// secret group is a prerequisite of every peer it shares with); the
// graph is checked for cycles with an iterative tri-color DFS and a
// cycle refuses the whole deployment before anything starts. Second,
// shared resources are prepared exactly once each, guarded by
// per-resource locks, and cross-domain CORS compatibility is checked
// (warnings only). Third, the topological order is segmented into
// dependency-aware batches of at most parallel_limit and handed to the
// batched scheduler in pkg/deploy. Fourth, every successful domain is
// verified with a health sweep; a failing verification demotes the
// domain in the final report.
//
// When auto-rollback is enabled and any domain failed, the coordinator
// walks the successful deployments in reverse completion order and
// executes each domain's recorded rollback plan. Individual rollback
// failures are logged and do not stop the sweep.
//
// Portfolio discovery merges domains from any combination of sources
// (explicit lists, portfolio files, platform listings); per-source
// errors are collected as warnings and never abort discovery.
package coordinator
