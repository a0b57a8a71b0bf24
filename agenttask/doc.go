// Copyright (c) Stepflow Authors.
// Licensed under the MIT License.

// Package agenttask applies the bounded fan-out pattern to task
// decomposition: a parent task is split into independent subtasks that run
// concurrently, and their outputs are aggregated into a single result.
// Subtask failures are recorded per subtask, never fatal to the batch.
package agenttask
