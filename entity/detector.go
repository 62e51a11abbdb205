package entity

import (
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/gpsalud/consultaflow/types"
)

// Entry is one dictionary entry. Priority order is carried by the slice the
// entry lives in, not by the entry itself.
type Entry struct {
	ID        string           // canonical entity ID (ENSALUD, ASI, IOSFA, ...)
	Canonical string           // canonical display name
	Aliases   []string         // alternate surface forms, misspellings included
	Type      types.EntityType // obra_social | institucion
	RAGFilter string           // metadata value used to filter retrieval
}

// Dictionary is the ordered, read-only set of entries the detector matches
// against. Earlier entries win ties.
type Dictionary struct {
	entries         []Entry
	fallbackMessage string
}

// NewDictionary builds a dictionary from entries in priority order.
func NewDictionary(entries []Entry, fallbackMessage string) *Dictionary {
	return &Dictionary{entries: entries, fallbackMessage: fallbackMessage}
}

// Entries returns the entries in priority order.
func (d *Dictionary) Entries() []Entry { return d.entries }

// DetectorConfig tunes matching behavior.
type DetectorConfig struct {
	// MatchWholeWords requires matches to start and end at word boundaries.
	// Plain substring containment is the default and can false-positive on
	// short aliases inside longer words; whole-word mode is opt-in.
	MatchWholeWords bool `yaml:"match_whole_words" json:"match_whole_words"`
}

// Detector matches free text against the dictionary. It is safe for
// concurrent use: the dictionary is immutable after construction.
type Detector struct {
	dict   *Dictionary
	cfg    DetectorConfig
	logger *zap.Logger

	// normalized forms, precomputed at construction
	normCanonical []string
	normAliases   [][]string
}

// NewDetector creates a detector over an immutable dictionary.
func NewDetector(dict *Dictionary, cfg DetectorConfig, logger *zap.Logger) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}

	d := &Detector{
		dict:          dict,
		cfg:           cfg,
		logger:        logger.With(zap.String("component", "entity_detector")),
		normCanonical: make([]string, len(dict.entries)),
		normAliases:   make([][]string, len(dict.entries)),
	}

	for i, e := range dict.entries {
		d.normCanonical[i] = Normalize(e.Canonical)
		aliases := make([]string, len(e.Aliases))
		for j, a := range e.Aliases {
			aliases[j] = Normalize(a)
		}
		d.normAliases[i] = aliases
	}

	return d
}

// Normalize lowercases, strips diacritics (NFD decomposition, combining
// marks dropped), and collapses whitespace. The same normalization is used
// for queries, canonical names, and aliases.
func Normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	decomposed := norm.NFD.String(text)

	var b strings.Builder
	b.Grow(len(decomposed))
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}

	return strings.Join(strings.Fields(b.String()), " ")
}

// Detect matches the query against the dictionary in priority order.
// Canonical names are tested before aliases within each entry; the first
// match wins. Empty or whitespace-only input yields no entity.
func (d *Detector) Detect(query string) types.EntityResult {
	q := Normalize(query)
	if q == "" {
		return types.NoEntity()
	}

	for i, e := range d.dict.entries {
		if d.contains(q, d.normCanonical[i]) {
			d.logger.Debug("entity detected",
				zap.String("entity", e.ID),
				zap.String("confidence", string(types.ConfidenceExact)))
			return types.EntityResult{
				Entity:      e.ID,
				Type:        e.Type,
				RAGFilter:   e.RAGFilter,
				MatchedTerm: e.Canonical,
				Confidence:  types.ConfidenceExact,
			}
		}

		for j, alias := range d.normAliases[i] {
			if d.contains(q, alias) {
				d.logger.Debug("entity detected",
					zap.String("entity", e.ID),
					zap.String("confidence", string(types.ConfidenceAlias)))
				return types.EntityResult{
					Entity:      e.ID,
					Type:        e.Type,
					RAGFilter:   e.RAGFilter,
					MatchedTerm: e.Aliases[j],
					Confidence:  types.ConfidenceAlias,
				}
			}
		}
	}

	return types.NoEntity()
}

func (d *Detector) contains(query, term string) bool {
	if term == "" {
		return false
	}
	if !d.cfg.MatchWholeWords {
		return strings.Contains(query, term)
	}

	idx := 0
	for {
		pos := strings.Index(query[idx:], term)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(term)
		if boundaryBefore(query, start) && boundaryAfter(query, end) {
			return true
		}
		idx = start + 1
	}
}

func boundaryBefore(s string, i int) bool {
	if i == 0 {
		return true
	}
	return !isWordByte(s[i-1])
}

func boundaryAfter(s string, i int) bool {
	if i >= len(s) {
		return true
	}
	return !isWordByte(s[i])
}

func isWordByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9') ||
		b >= 0x80 // non-ASCII treated as word content
}

// FallbackMessage returns the fixed response used when no entity is
// detected.
func (d *Detector) FallbackMessage() string {
	return strings.TrimSpace(d.dict.fallbackMessage)
}

// Entities returns the canonical IDs in priority order.
func (d *Detector) Entities() []string {
	ids := make([]string, len(d.dict.entries))
	for i, e := range d.dict.entries {
		ids[i] = e.ID
	}
	return ids
}

// EntityType returns the type of a known entity, or EntityNone.
func (d *Detector) EntityType(id string) types.EntityType {
	for _, e := range d.dict.entries {
		if e.ID == id {
			return e.Type
		}
	}
	return types.EntityNone
}
