// Package meeting holds the catalog of pub meeting names and the loaders
// that build it at startup.
//
// A Catalog is immutable once built: the list is validated, copied and never
// changed while serving. An empty list is a configuration fault reported as
// ErrEmptyCatalog, and the server refuses to start on it.
package meeting
