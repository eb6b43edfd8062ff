// Package internal holds shared primitives used across the authcore
// engine: identifier generation, token hashing, and device fingerprints.
// Nothing here is part of the public API.
package internal
