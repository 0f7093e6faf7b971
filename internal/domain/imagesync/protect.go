package imagesync

import (
	"fmt"
	"path"
	"strings"
)

// ProtectionList holds glob patterns of mirror objects that are never deleted.
// Patterns match the clean blob name case-insensitively, e.g. "0-*" or "*logo*".
type ProtectionList struct {
	patterns []string
}

// NewProtectionList validates and compiles the given patterns.
func NewProtectionList(patterns []string) (*ProtectionList, error) {
	pl := &ProtectionList{patterns: make([]string, 0, len(patterns))}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, err := path.Match(p, ""); err != nil {
			return nil, fmt.Errorf("invalid protected pattern %q: %w", p, err)
		}
		pl.patterns = append(pl.patterns, p)
	}
	return pl, nil
}

// Protects reports whether the object is covered by any pattern.
func (pl *ProtectionList) Protects(obj MirrorObject) bool {
	if pl == nil {
		return false
	}
	name := strings.ToLower(obj.CleanPath())
	for _, p := range pl.patterns {
		if ok, _ := path.Match(p, name); ok {
			return true
		}
	}
	return false
}

// Patterns returns a copy of the compiled patterns.
func (pl *ProtectionList) Patterns() []string {
	if pl == nil {
		return nil
	}
	return append([]string(nil), pl.patterns...)
}
