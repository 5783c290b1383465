package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/aretw0/arbor/pkg/domain"
)

// Key derives the cache key for a node invocation. It hashes the node ID,
// version tag, and the canonical serialization of the inputs (the state
// projected onto the node's read footprint).
//
// The key is stable across process restarts: map serialization is canonical
// (sorted keys), and the hash input is length-prefixed so no two distinct
// (id, version, inputs) triples collide on concatenation.
func Key(nodeID string, inputs domain.GraphState, version string) (string, error) {
	raw, err := inputs.Marshal()
	if err != nil {
		return "", fmt.Errorf("derive cache key for %s: %w", nodeID, err)
	}

	h := sha256.New()
	for _, part := range [][]byte{[]byte(nodeID), []byte(version), raw} {
		fmt.Fprintf(h, "%d:", len(part))
		h.Write(part)
	}

	return nodeID + ":" + version + ":" + hex.EncodeToString(h.Sum(nil)), nil
}

// NodePrefix returns the invalidation pattern covering every entry of one
// node, across all versions and inputs.
func NodePrefix(nodeID string) string {
	return nodeID + ":*"
}
