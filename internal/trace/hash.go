package trace

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
)

// ComputeTraceHash returns the sha256 hex of a canonical trace encoding.
// Empty input hashes to "".
func ComputeTraceHash(canonicalEncoding []byte) string {
	if len(canonicalEncoding) == 0 {
		return ""
	}
	sum := sha256.Sum256(canonicalEncoding)
	return hex.EncodeToString(sum[:])
}

// InputsHash identifies a set of input artifact names, independent of the
// order they are given in.
func InputsHash(names []string) string {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return hex.EncodeToString(sum[:])
}
