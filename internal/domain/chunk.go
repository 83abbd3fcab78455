package domain

import (
	"fmt"
	"time"
)

// Chunk is a contiguous page range [StartPage, EndPage) of a Document, the unit
// the pipeline processes independently. When overlap is enabled every chunk after
// the first starts at the previous chunk's last page, so a topic spanning exactly
// one page boundary appears in full inside at least one chunk.
type Chunk struct {
	ID             string
	DocumentID     string
	Seq            int
	StartPage      int
	EndPage        int
	OverlapEnabled bool
	CreatedAt      time.Time
}

// PageCount returns the number of pages the chunk covers.
func (c *Chunk) PageCount() int {
	return c.EndPage - c.StartPage
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}
	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}
	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}
	if c.Seq < 0 {
		return fmt.Errorf("chunk Seq cannot be negative")
	}
	if c.StartPage < 0 {
		return fmt.Errorf("chunk StartPage cannot be negative")
	}
	if c.EndPage <= c.StartPage {
		return fmt.Errorf("chunk EndPage must be greater than StartPage")
	}
	return nil
}
