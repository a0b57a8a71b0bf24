// Copyright (c) Stepflow Authors.
// Licensed under the MIT License.

// Package cacheflow applies the bounded fan-out pattern to redis cache
// maintenance: warming a collection of independent queries and invalidating
// key patterns, with hit/miss aggregates per batch. It is a convenience
// layer over the same concurrency primitive the DAG engine uses; no
// dependency graph is involved because every input is independent.
package cacheflow
