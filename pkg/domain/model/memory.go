package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// EmbeddingDimension is the dimension of the embedding vector.
// Gemini text-embedding-004 uses 768 dimensions. Changing it requires
// recreating the vector index (see `laffey reset-index`).
const EmbeddingDimension = 768

// LearnTag marks user text of learned knowledge. It is structurally meaningful
// and must survive every update of the record.
const LearnTag = "[LEARN]"

// MemoryID is a UUID-based identifier for episodic memory
type MemoryID string

// NewMemoryID generates a new UUID v4 MemoryID
func NewMemoryID() MemoryID {
	return MemoryID(uuid.New().String())
}

func (x MemoryID) String() string { return string(x) }

// MemoryKind classifies episodic memory
type MemoryKind string

const (
	MemoryKindEpisodic         MemoryKind = "episodic"
	MemoryKindLearnedKnowledge MemoryKind = "learned_knowledge"
)

// WorkingMemoryItem is one turn kept in the per-channel short-term buffer.
type WorkingMemoryItem struct {
	SpeakerID       string
	SpeakerName     string
	Text            string
	ChannelID       string
	Timestamp       time.Time
	IsAgentResponse bool
}

// EpisodicMemory is a durable record of one interaction (user turn and agent
// turn) stored in the vector index.
type EpisodicMemory struct {
	ID             MemoryID
	SpeakerID      string
	SpeakerName    string
	ChannelID      string
	UserText       string
	AgentText      string
	Timestamp      time.Time
	RelevanceScore float64
	Kind           MemoryKind
	EmotionalTone  string
	TopicKeywords  []string
	Metadata       map[string]string
}

// LearnedText prefixes question with LearnTag unless it already carries it
func LearnedText(question string) string {
	question = strings.TrimSpace(question)
	if strings.HasPrefix(question, LearnTag) {
		return question
	}
	return LearnTag + " " + question
}

// IsLearned reports whether the memory is learned knowledge. Both the kind and
// the tag must agree.
func (x *EpisodicMemory) IsLearned() bool {
	return x.Kind == MemoryKindLearnedKnowledge && strings.HasPrefix(x.UserText, LearnTag)
}

// Question returns UserText without LearnTag
func (x *EpisodicMemory) Question() string {
	return strings.TrimSpace(strings.TrimPrefix(x.UserText, LearnTag))
}

// EmbedText is the single text blob the memory is embedded as
func (x *EpisodicMemory) EmbedText() string {
	return fmt.Sprintf("User %s: %s\nAgent: %s", x.SpeakerName, x.UserText, x.AgentText)
}

// Copy returns a deep copy
func (x *EpisodicMemory) Copy() *EpisodicMemory {
	copied := *x
	if x.TopicKeywords != nil {
		copied.TopicKeywords = append([]string(nil), x.TopicKeywords...)
	}
	if x.Metadata != nil {
		copied.Metadata = make(map[string]string, len(x.Metadata))
		for k, v := range x.Metadata {
			copied.Metadata[k] = v
		}
	}
	return &copied
}

// Metadata keys of VectorRecord
const (
	MetaSpeakerID      = "speaker_id"
	MetaSpeakerName    = "speaker_name"
	MetaChannelID      = "channel_id"
	MetaUserText       = "user_text"
	MetaAgentText      = "agent_text"
	MetaTimestamp      = "timestamp"
	MetaRelevanceScore = "relevance_score"
	MetaMemoryKind     = "memory_kind"
	MetaEmotionalTone  = "emotional_tone"
	MetaTopicKeywords  = "topic_keywords"
	MetaShadowOf       = "shadow_of"

	metaCustomPrefix = "meta_"
)

// VectorRecord is the backend representation of an episodic memory
type VectorRecord struct {
	ID        MemoryID
	Text      string
	Embedding []float32
	Metadata  map[string]string
}

// ScoredRecord is a VectorRecord with its similarity to the query
type ScoredRecord struct {
	Record *VectorRecord
	Score  float64
}

// ToRecord flattens the memory into a VectorRecord
func (x *EpisodicMemory) ToRecord(embedding []float32) *VectorRecord {
	meta := map[string]string{
		MetaSpeakerID:      x.SpeakerID,
		MetaSpeakerName:    x.SpeakerName,
		MetaChannelID:      x.ChannelID,
		MetaUserText:       x.UserText,
		MetaAgentText:      x.AgentText,
		MetaTimestamp:      x.Timestamp.UTC().Format(time.RFC3339Nano),
		MetaRelevanceScore: strconv.FormatFloat(x.RelevanceScore, 'f', -1, 64),
		MetaMemoryKind:     string(x.Kind),
		MetaEmotionalTone:  x.EmotionalTone,
	}
	if len(x.TopicKeywords) > 0 {
		if raw, err := json.Marshal(x.TopicKeywords); err == nil {
			meta[MetaTopicKeywords] = string(raw)
		}
	}
	for k, v := range x.Metadata {
		meta[metaCustomPrefix+k] = v
	}

	return &VectorRecord{
		ID:        x.ID,
		Text:      x.EmbedText(),
		Embedding: embedding,
		Metadata:  meta,
	}
}

// EpisodicMemoryFromRecord restores a memory from its backend record.
// Unparsable numeric or time fields fall back to zero values.
func EpisodicMemoryFromRecord(rec *VectorRecord) *EpisodicMemory {
	meta := rec.Metadata
	mem := &EpisodicMemory{
		ID:            rec.ID,
		SpeakerID:     meta[MetaSpeakerID],
		SpeakerName:   meta[MetaSpeakerName],
		ChannelID:     meta[MetaChannelID],
		UserText:      meta[MetaUserText],
		AgentText:     meta[MetaAgentText],
		Kind:          MemoryKind(meta[MetaMemoryKind]),
		EmotionalTone: meta[MetaEmotionalTone],
	}
	if mem.Kind == "" {
		mem.Kind = MemoryKindEpisodic
	}
	if ts, err := time.Parse(time.RFC3339Nano, meta[MetaTimestamp]); err == nil {
		mem.Timestamp = ts
	}
	if score, err := strconv.ParseFloat(meta[MetaRelevanceScore], 64); err == nil {
		mem.RelevanceScore = score
	}
	if raw := meta[MetaTopicKeywords]; raw != "" {
		var keywords []string
		if err := json.Unmarshal([]byte(raw), &keywords); err == nil {
			mem.TopicKeywords = keywords
		}
	}
	for k, v := range meta {
		if strings.HasPrefix(k, metaCustomPrefix) {
			if mem.Metadata == nil {
				mem.Metadata = make(map[string]string)
			}
			mem.Metadata[strings.TrimPrefix(k, metaCustomPrefix)] = v
		}
	}
	return mem
}

// MemoryFilter restricts vector search by metadata equality. Empty fields are
// not applied.
type MemoryFilter struct {
	SpeakerID string
	ChannelID string
	Kind      MemoryKind
}

// ToMap converts the filter to backend metadata equality conditions
func (x MemoryFilter) ToMap() map[string]string {
	m := make(map[string]string)
	if x.SpeakerID != "" {
		m[MetaSpeakerID] = x.SpeakerID
	}
	if x.ChannelID != "" {
		m[MetaChannelID] = x.ChannelID
	}
	if x.Kind != "" {
		m[MetaMemoryKind] = string(x.Kind)
	}
	return m
}

// ScoredMemory is a search hit
type ScoredMemory struct {
	Memory *EpisodicMemory
	Score  float64
}
