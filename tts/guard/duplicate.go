// Package guard decides whether a read request should be refused before a
// session is created.
package guard

import (
	"time"
)

// Duplicate guard defaults.
const (
	DefaultWindow       = 3000 * time.Millisecond
	DefaultPrefixLength = 2000
)

// Fingerprint hashes the first prefix runes of text.
func Fingerprint(text string, prefix int) uint32 {
	var h uint32
	n := 0
	for _, r := range text {
		if n == prefix {
			break
		}
		h = h*31 + uint32(r)
		n++
	}
	return h
}

// Duplicate suppresses a request identical to the previous one when it
// arrives within the window. It keeps a single record shared by every
// session.
type Duplicate struct {
	Window time.Duration
	Prefix int

	hash uint32
	at   time.Time
	seen bool
}

// NewDuplicate returns a guard with the given window. A non-positive
// window uses DefaultWindow.
func NewDuplicate(window time.Duration) *Duplicate {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Duplicate{Window: window, Prefix: DefaultPrefixLength}
}

// Check reports whether text, requested at now, duplicates the previous
// request. A request that is not a duplicate becomes the new record.
func (d *Duplicate) Check(text string, now time.Time) bool {
	prefix := d.Prefix
	if prefix <= 0 {
		prefix = DefaultPrefixLength
	}
	h := Fingerprint(text, prefix)

	if d.seen && h == d.hash && now.Sub(d.at) <= d.Window {
		return true
	}
	d.hash, d.at, d.seen = h, now, true
	return false
}

// Forget clears the record.
func (d *Duplicate) Forget() {
	d.seen = false
}
