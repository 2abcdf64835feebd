package survey

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrMissingInputColumn matches *MissingColumnError.
	ErrMissingInputColumn = errors.New("missing input column")

	// ErrNameCollision matches *CollisionError.
	ErrNameCollision = errors.New("name collision")
)

// MissingColumnError reports a configured column that is absent from the input.
// It is only returned for required columns; optional ones become warnings.
type MissingColumnError struct {
	Column string
	Role   string // "required" | "multi_select"
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("survey: %s column %q not found in input", e.Role, e.Column)
}

func (e *MissingColumnError) Is(target error) bool { return target == ErrMissingInputColumn }

// CollisionError reports distinct sources that map to the same output name.
//
// Scope says where the collision happened: "header", an indicator prefix
// such as "q8", or a table name after renaming.
type CollisionError struct {
	Scope      string
	Collisions map[string][]string // output name -> distinct sources
}

func (e *CollisionError) Error() string {
	names := make([]string, 0, len(e.Collisions))
	for n := range e.Collisions {
		names = append(names, n)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, n := range names {
		parts = append(parts, fmt.Sprintf("%s <- %q", n, e.Collisions[n]))
	}
	return fmt.Sprintf("survey: %s: %d name collision(s): %s", e.Scope, len(names), strings.Join(parts, "; "))
}

func (e *CollisionError) Is(target error) bool { return target == ErrNameCollision }

// collisions tracks output name -> distinct source names, preserving first-seen order.
type collisions struct {
	sources map[string][]string
	order   []string
}

func newCollisions() *collisions {
	return &collisions{sources: map[string][]string{}}
}

// add records source under name; repeated identical sources count once.
func (c *collisions) add(name, source string) {
	for _, s := range c.sources[name] {
		if s == source {
			return
		}
	}
	c.addEach(name, source)
}

// addEach records source under name even if it was recorded before.
func (c *collisions) addEach(name, source string) {
	prev, seen := c.sources[name]
	if !seen {
		c.order = append(c.order, name)
	}
	c.sources[name] = append(prev, source)
}

// conflicts returns only the names with more than one distinct source.
func (c *collisions) conflicts() map[string][]string {
	var out map[string][]string
	for _, n := range c.order {
		if len(c.sources[n]) > 1 {
			if out == nil {
				out = map[string][]string{}
			}
			out[n] = c.sources[n]
		}
	}
	return out
}
