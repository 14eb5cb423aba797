// Package common contains shared constants and sentinel errors used across
// vault components.
package common

// GenesisRootHash is the previous-root sentinel for the first rooted day.
// It is a fixed 64-character hex string so the inter-day fold is fully
// defined from day one.
const GenesisRootHash = "0000000000000000000000000000000000000000000000000000000000000000"
