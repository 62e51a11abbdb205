// Package rewrite expands colloquial query text with domain synonyms so it
// matches indexed chunk wording better. Rewriting only ever appends to the
// original query and is deterministic for identical inputs.
package rewrite
