// Package digest defines the core types shared across the QuantumBoom
// pipeline: normalized source items, summaries, the assembled digest, and
// the ports each stage depends on.
package digest
