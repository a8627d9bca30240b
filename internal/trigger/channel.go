package trigger

import "sync/atomic"

// Channel holds the current WordSet. Replace swaps the whole set atomically so
// a concurrent Snapshot sees either the old or the new set, never a mix.
// Concurrent Replace calls are last-write-wins.
type Channel struct {
	cur atomic.Pointer[WordSet]
}

// NewChannel returns a Channel seeded with words
func NewChannel(words ...string) *Channel {
	c := &Channel{}
	c.Replace(words)
	return c
}

// Replace normalizes words and installs them as the current set
func (c *Channel) Replace(words []string) WordSet {
	set := Normalize(words)
	c.cur.Store(&set)
	return set
}

// Snapshot returns the current set
func (c *Channel) Snapshot() WordSet {
	if p := c.cur.Load(); p != nil {
		return *p
	}
	return WordSet{}
}
