// Package entity implements dictionary-based entity detection for the
// deterministic query router. Detection never calls an LLM: queries are
// normalized and matched against a prioritized dictionary of canonical
// names and aliases loaded once at startup.
package entity
