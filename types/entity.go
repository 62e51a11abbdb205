package types

// EntityType classifies a detected entity.
type EntityType string

const (
	EntityInsurer     EntityType = "obra_social"
	EntityInstitution EntityType = "institucion"
	EntityNone        EntityType = ""
)

// Confidence describes how an entity was matched.
type Confidence string

const (
	ConfidenceExact Confidence = "exact" // canonical name matched
	ConfidenceAlias Confidence = "alias" // one of the aliases matched
	ConfidenceNone  Confidence = "none"  // nothing matched
)

// EntityResult is the outcome of entity detection over a single query.
// It is created fresh per request and never mutated after construction.
//
// Invariant: Confidence == ConfidenceNone if and only if Entity == "".
type EntityResult struct {
	Entity      string     `json:"entity,omitempty"`       // canonical entity ID, "" when not detected
	Type        EntityType `json:"entity_type,omitempty"`  // obra_social | institucion
	RAGFilter   string     `json:"rag_filter,omitempty"`   // value used to filter vector search
	MatchedTerm string     `json:"matched_term,omitempty"` // literal term that matched
	Confidence  Confidence `json:"confidence"`
}

// Detected reports whether a valid entity was found.
func (r EntityResult) Detected() bool {
	return r.Entity != ""
}

// NoEntity returns the result used when nothing matched.
func NoEntity() EntityResult {
	return EntityResult{Confidence: ConfidenceNone}
}
