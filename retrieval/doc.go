// Package retrieval implements metadata-filtered vector similarity search
// over pre-chunked documents. The metadata filter is applied by the index
// collaborator BEFORE ranking (filter-first): asking for top-k results with
// a filter returns up to k results from that filter, never fewer because an
// unfiltered top-k happened to miss them.
package retrieval
