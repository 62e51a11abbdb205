package entity

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/gpsalud/consultaflow/types"
)

// DefaultFallbackMessage is used when the dictionary source does not
// configure a no-entity response.
const DefaultFallbackMessage = "¿Para qué obra social es la consulta (IOSFA, ENSALUD, ASI) o es para el Grupo Pediátrico?\nVolvé a hacer la pregunta especificándolo."

// dictionaryFile is the YAML schema of the entity dictionary source.
type dictionaryFile struct {
	Entities map[string]entryFile `yaml:"entities"`
	Detection struct {
		Priority []string `yaml:"priority"`
	} `yaml:"detection"`
	NoEntityResponse struct {
		Message string `yaml:"message"`
	} `yaml:"no_entity_response"`
}

type entryFile struct {
	Canonical string   `yaml:"canonical"`
	Type      string   `yaml:"type"`
	RAGFilter string   `yaml:"rag_filter"`
	Aliases   []string `yaml:"aliases"`
}

// LoadDictionary reads and validates an entity dictionary from a YAML file.
// Any validation failure is a CONFIG_INVALID error: the caller must treat it
// as fatal at startup, never per request.
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("read entity dictionary %s", path), err)
	}
	return ParseDictionary(data)
}

// ParseDictionary parses and validates YAML dictionary content.
func ParseDictionary(data []byte) (*Dictionary, error) {
	var file dictionaryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, types.NewError(types.ErrConfigInvalid, "parse entity dictionary", err)
	}

	if len(file.Entities) == 0 {
		return nil, types.NewError(types.ErrConfigInvalid, "entity dictionary has no entities", nil)
	}

	priority := file.Detection.Priority
	if len(priority) == 0 {
		// YAML maps are unordered in Go; without an explicit priority list
		// we fall back to sorted IDs so tie-breaking stays deterministic.
		for id := range file.Entities {
			priority = append(priority, id)
		}
		sort.Strings(priority)
	}

	seen := make(map[string]bool, len(priority))
	entries := make([]Entry, 0, len(priority))
	for _, id := range priority {
		if seen[id] {
			return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("duplicate entity %q in priority list", id), nil)
		}
		seen[id] = true

		raw, ok := file.Entities[id]
		if !ok {
			return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("priority references unknown entity %q", id), nil)
		}

		e := Entry{
			ID:        id,
			Canonical: raw.Canonical,
			Aliases:   raw.Aliases,
			Type:      types.EntityType(raw.Type),
			RAGFilter: raw.RAGFilter,
		}
		if e.Canonical == "" {
			e.Canonical = id
		}
		if e.RAGFilter == "" {
			e.RAGFilter = id
		}
		entries = append(entries, e)
	}

	for id := range file.Entities {
		if !seen[id] {
			return nil, types.NewError(types.ErrConfigInvalid, fmt.Sprintf("entity %q missing from priority list", id), nil)
		}
	}

	msg := file.NoEntityResponse.Message
	if msg == "" {
		msg = DefaultFallbackMessage
	}

	return NewDictionary(entries, msg), nil
}
