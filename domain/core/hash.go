package core

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Equals checks if two hashes are equal
func (h Hash) Equals(other Hash) bool {
	return h == other
}

// StudyFingerprint identifies the exact configuration a study ran under.
// Two studies with equal fingerprints and equal seeds produce identical
// rank collections, which is how reruns are audited.
type StudyFingerprint Hash

func (h StudyFingerprint) String() string { return Hash(h).String() }

// ComputeStudyFingerprint hashes the study configuration fields in sorted
// key order so map iteration never changes the fingerprint.
func ComputeStudyFingerprint(fields map[string]interface{}) StudyFingerprint {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var data strings.Builder
	for _, key := range keys {
		data.WriteString(key)
		data.WriteString(fmt.Sprintf("%v", fields[key]))
	}

	return StudyFingerprint(NewHash([]byte(data.String())))
}
