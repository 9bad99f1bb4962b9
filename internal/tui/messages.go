package tui

import "github.com/dkeye/listenparty/internal/catalog"

// ChangedMsg is sent whenever the party reports a change.
type ChangedMsg struct{}

// CatalogRetriedMsg carries the outcome of a manual catalog retry.
type CatalogRetriedMsg struct {
	Catalog catalog.Catalog
	Err     error
}

// LanguageErrorMsg is sent when the language attribute could not be set.
type LanguageErrorMsg struct {
	Err error
}
