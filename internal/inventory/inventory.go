// Package inventory builds the in-memory view of a playlist folder's audio
// files keyed by normalized title.
package inventory

import (
	"spotisync/internal/normalize"
	"spotisync/pkg/models"
)

// Inventory maps normalized titles to the files that carry them. Keys keep
// the order in which they were first seen; a later file with the same key
// replaces the earlier descriptor.
type Inventory struct {
	byKey map[string]models.FileDescriptor
	keys  []string
	files []models.FileDescriptor
}

// New returns an empty inventory
func New() *Inventory {
	return &Inventory{byKey: make(map[string]models.FileDescriptor)}
}

// Add records a file under the normalized form of its title. Files whose
// title normalizes to nothing are only reachable through Files.
func (inv *Inventory) Add(fd models.FileDescriptor) {
	inv.files = append(inv.files, fd)

	key := normalize.ForMatch(fd.Title)
	if key == "" {
		return
	}
	if _, exists := inv.byKey[key]; !exists {
		inv.keys = append(inv.keys, key)
	}
	inv.byKey[key] = fd
}

// Lookup returns the descriptor stored under an exact key
func (inv *Inventory) Lookup(key string) (models.FileDescriptor, bool) {
	fd, ok := inv.byKey[key]
	return fd, ok
}

// Keys returns the normalized titles in first-seen order
func (inv *Inventory) Keys() []string {
	return inv.keys
}

// Files returns every scanned file in scan order
func (inv *Inventory) Files() []models.FileDescriptor {
	return inv.files
}

// Len is the number of distinct keys
func (inv *Inventory) Len() int {
	return len(inv.keys)
}
