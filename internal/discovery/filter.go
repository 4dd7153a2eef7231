// Package discovery decides which advertisements are maze devices and keeps
// each candidate from being reported more than once per scan window.
package discovery

import (
	"strings"

	"github.com/cornelk/hashmap"
	"github.com/srg/mazelink/internal/device"
)

// DefaultNameFilter is the substring every maze device carries in its advertised name.
const DefaultNameFilter = "MazeChallenge"

// Filter admits or rejects an advertisement
type Filter func(adv device.Advertisement) bool

// NameContains matches advertisements whose local name contains substr.
// This is the only admission rule for maze devices; signal strength and
// address are deliberately ignored.
func NameContains(substr string) Filter {
	return func(adv device.Advertisement) bool {
		if adv == nil || substr == "" {
			return false
		}
		return strings.Contains(adv.LocalName(), substr)
	}
}

// Candidates tracks the devices already reported during one scan window.
// Scan handlers may run on radio goroutines, so it is safe for concurrent use.
type Candidates struct {
	seen *hashmap.Map[string, device.Handle]
}

// NewCandidates creates an empty candidate set
func NewCandidates() *Candidates {
	return &Candidates{seen: hashmap.New[string, device.Handle]()}
}

// Admit records the handle and reports whether this is its first sighting.
func (c *Candidates) Admit(h device.Handle) bool {
	_, loaded := c.seen.GetOrInsert(h.ID, h)
	return !loaded
}

// Len returns the number of distinct devices admitted
func (c *Candidates) Len() int {
	return c.seen.Len()
}
