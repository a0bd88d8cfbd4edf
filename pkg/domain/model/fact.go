package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// SubjectForUser returns the fact subject key used for a chat user
func SubjectForUser(userID string) string {
	return "user_" + userID
}

// SemanticFact is a durable, deduplicated statement. (Subject, Kind, Content)
// is the natural key.
type SemanticFact struct {
	Kind            string
	Subject         string
	Content         string
	Confidence      float64
	SourceMemoryIDs []MemoryID
	CreatedAt       time.Time
	LastUpdated     time.Time
}

// NaturalKey returns a stable digest of (Subject, Kind, Content)
func (x *SemanticFact) NaturalKey() string {
	h := sha256.New()
	h.Write([]byte(x.Subject))
	h.Write([]byte{0})
	h.Write([]byte(x.Kind))
	h.Write([]byte{0})
	h.Write([]byte(x.Content))
	return hex.EncodeToString(h.Sum(nil))
}

// ClampConfidence bounds Confidence to [0, 1]
func (x *SemanticFact) ClampConfidence() {
	switch {
	case x.Confidence < 0:
		x.Confidence = 0
	case x.Confidence > 1:
		x.Confidence = 1
	}
}

// MergeSourceIDs returns the union of a and b keeping first-seen order
func MergeSourceIDs(a, b []MemoryID) []MemoryID {
	seen := make(map[MemoryID]struct{}, len(a)+len(b))
	merged := make([]MemoryID, 0, len(a)+len(b))
	for _, ids := range [][]MemoryID{a, b} {
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			merged = append(merged, id)
		}
	}
	return merged
}

// FactQuery selects facts. Empty fields match everything; Limit <= 0 means no
// limit.
type FactQuery struct {
	Subject string
	Kind    string
	Limit   int
}
