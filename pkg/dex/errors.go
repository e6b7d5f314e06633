// Package dex holds the domain model of the lookup service: views over the raw
// remote documents, the evolution chain walker, moveset grouping, the type
// chart and the final merged response.
package dex

import "errors"

var (
	// ErrNotFound marks a name that resolves to nothing or a resource the
	// remote provider does not have. It is client-facing.
	ErrNotFound = errors.New("not found")
	// ErrUpstream marks any other remote failure. It is server-facing.
	ErrUpstream = errors.New("upstream error")
)
