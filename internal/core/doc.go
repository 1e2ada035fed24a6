// Package core provides the artifact model for deterministic jar transforms.
//
// # Design Principles
//
// All structures in this package adhere to the following constraints:
//
//  1. No implied fields that could affect determinism (e.g., timestamps)
//  2. Cache keys are derived from content and transform settings, never from
//     file metadata or absolute paths
//  3. Cached outputs are normalized so replay is bit-for-bit stable
//
// # Core Types
//
// Artifact: an input archive resolved from the command line.
// ArtifactHash: the cache key of one transform invocation.
// CacheEntry: the stored, normalized output of a successful transform.
// Runner: hash, probe the cache, and either replay or transform.
package core
