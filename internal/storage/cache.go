package storage

import (
	"time"

	"github.com/rewired-gh/pppwatch/internal/models"
)

// FrameCache binds a Storage to one pair so it can serve as the dashboard's cache.
type FrameCache struct {
	store   *Storage
	pairKey string
}

func NewFrameCache(store *Storage, pairKey string) *FrameCache {
	return &FrameCache{store: store, pairKey: pairKey}
}

// Load returns the latest cached frame and when it was computed, or a nil
// frame if none has been stored.
func (c *FrameCache) Load() (*models.Frame, time.Time, error) {
	frame, info, err := c.store.LoadFrame(c.pairKey)
	return frame, info.ComputedAt, err
}

func (c *FrameCache) Store(frame *models.Frame) error {
	_, err := c.store.SaveFrame(c.pairKey, frame)
	return err
}

// History lists the stored frames for the pair, newest first.
func (c *FrameCache) History() ([]FrameInfo, error) {
	return c.store.FrameHistory(c.pairKey)
}
