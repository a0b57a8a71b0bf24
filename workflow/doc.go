// Copyright (c) Stepflow Authors.
// Licensed under the MIT License.

/*
Package workflow provides a dependency-aware DAG orchestration engine.

# Overview

The workflow package executes a set of named steps respecting their declared
dependencies. Scheduling is wavefront-based: all steps whose dependencies
have resolved run concurrently under a shared bounded concurrency gate, and
their results are folded into the accumulated result map at wavefront
boundaries until the graph is exhausted.

# Core types

  - Step             — declarative step descriptor (work, dependencies,
    criticality, timeout, retry budget)
  - DAGOrchestrator  — validates the graph at construction and executes it
  - StepOutcome      — immutable per-step resolution record
  - ExecutionReport  — per-run history with step timestamps and attempts
  - Builder          — fluent graph construction
  - Definition       — YAML/JSON serializable graphs bound via WorkRegistry
  - FanOut           — bounded fan-out over homogeneous independent inputs

# Failure semantics

A failing critical step aborts the whole run after its wavefront drains; a
failing non-critical step is recorded and resolves to a nil result so its
dependents can still be scheduled. Retries are timeout-triggered only.
Malformed graphs (cycles, unknown or duplicate names) are rejected at
construction, before any work runs.
*/
package workflow
