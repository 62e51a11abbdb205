package types

// Metadata keys every indexed chunk carries. The entity key is the field
// retrieval filters on.
const (
	MetaEntityID = "entity_id"
	MetaSourceID = "source_id"
	MetaChunkID  = "chunk_id"
	MetaSection  = "section"
	MetaIsTable  = "is_table"
)

// Chunk is a pre-segmented unit of source document text returned by
// retrieval, ordered by similarity descending.
type Chunk struct {
	Text       string         `json:"text"`
	Metadata   map[string]any `json:"metadata"`
	Similarity float64        `json:"similarity"` // [0,1], 1 = identical
}

// EntityID returns the entity the chunk belongs to, or "" when unset.
func (c Chunk) EntityID() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[MetaEntityID].(string); ok {
		return v
	}
	return ""
}

// ChunkID returns the chunk identifier, or "" when unset.
func (c Chunk) ChunkID() string {
	if c.Metadata == nil {
		return ""
	}
	if v, ok := c.Metadata[MetaChunkID].(string); ok {
		return v
	}
	return ""
}
