// Package styles holds the read-only caption style catalog and the local
// selection state.
package styles

import (
	"errors"
	"sync"

	"caption-studio/internal/domain"
)

// ErrUnknownStyle is returned when selecting a style id that is not a member
// of the loaded catalog.
var ErrUnknownStyle = errors.New("unknown style id")

// Catalog stores the fetched presentation presets. The set is read-only to
// the client; only the selection changes after population.
type Catalog struct {
	mu         sync.RWMutex
	styles     []domain.CaptionStyle
	selectedID string
}

// NewCatalog creates an empty catalog with no selection.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Populate replaces the catalog contents and selects the first entry when the
// list is non-empty.
func (c *Catalog) Populate(styles []domain.CaptionStyle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.styles = append([]domain.CaptionStyle(nil), styles...)
	c.selectedID = ""
	if len(c.styles) > 0 {
		c.selectedID = c.styles[0].ID
	}
}

// Select changes the selection to a catalog member. Unknown ids fail and
// leave the current selection unchanged.
func (c *Catalog) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, style := range c.styles {
		if style.ID == id {
			c.selectedID = id
			return nil
		}
	}
	return ErrUnknownStyle
}

// SelectedID returns the selected style id, empty when nothing is loaded.
func (c *Catalog) SelectedID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selectedID
}

// Selected returns the selected style and whether one exists.
func (c *Catalog) Selected() (domain.CaptionStyle, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, style := range c.styles {
		if style.ID == c.selectedID {
			return style, true
		}
	}
	return domain.CaptionStyle{}, false
}

// Styles returns a copy of the catalog contents.
func (c *Catalog) Styles() []domain.CaptionStyle {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]domain.CaptionStyle(nil), c.styles...)
}
