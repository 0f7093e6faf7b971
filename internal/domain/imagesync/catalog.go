package imagesync

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const placeholderPrefix = "/api/placeholder/"

var (
	numberPrefix = regexp.MustCompile(`^(\d+)-`)
	wordSplit    = regexp.MustCompile(`[^A-Za-z0-9äöüÄÖÜß]+`)
)

// Catalog maps dotted constant names to clean image paths, e.g.
// "hero.nestHaus1" -> "1-NEST-Haus-Titelbild" or "hero.mobile.nestHaus1" -> "1-NEST-Haus-Titelbild-mobile".
type Catalog map[string]string

// ParseCatalog flattens a nested JSON catalog document. Non-string leaves are rejected.
func ParseCatalog(data []byte) (Catalog, error) {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode image catalog: %w", err)
	}
	out := Catalog{}
	if err := flatten("", doc, out); err != nil {
		return nil, err
	}
	return out, nil
}

func flatten(prefix string, node map[string]any, out Catalog) error {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case string:
			out[key] = val
		case map[string]any:
			if err := flatten(key, val, out); err != nil {
				return err
			}
		default:
			return fmt.Errorf("image catalog key %q holds %T, want string or object", key, v)
		}
	}
	return nil
}

// Marshal renders the catalog as indented nested JSON with sorted keys.
func (c Catalog) Marshal() ([]byte, error) {
	root := map[string]any{}
	for key, value := range c {
		parts := strings.Split(key, ".")
		node := root
		for _, part := range parts[:len(parts)-1] {
			child, ok := node[part].(map[string]any)
			if !ok {
				if _, clash := node[part]; clash {
					return nil, fmt.Errorf("image catalog key %q collides with a value", key)
				}
				child = map[string]any{}
				node[part] = child
			}
			node = child
		}
		leaf := parts[len(parts)-1]
		if _, clash := node[leaf].(map[string]any); clash {
			return nil, fmt.Errorf("image catalog key %q collides with a section", key)
		}
		node[leaf] = value
	}
	data, err := json.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// Keys returns the catalog keys in sorted order.
func (c Catalog) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// CatalogChange is a single key added or updated by a merge.
type CatalogChange struct {
	Key      string `json:"key"`
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue"`
}

// MergeResult describes what a catalog merge did.
type MergeResult struct {
	Catalog    Catalog
	Updated    []CatalogChange
	Added      []CatalogChange
	KeysBefore int
	KeysAfter  int
}

// Changed reports whether the merged catalog differs from the input.
func (r MergeResult) Changed() bool {
	return len(r.Updated) > 0 || len(r.Added) > 0
}

// MergeCatalog folds the mirror's current images into the catalog without
// ever removing keys. Values pointing at a synced (number, variant) are
// repointed to the current clean path; images with no key yet are added
// under their inferred category.
func MergeCatalog(current Catalog, mirror []MirrorObject) (MergeResult, error) {
	res := MergeResult{Catalog: current.Clone(), KeysBefore: len(current)}

	latest := make(map[Key]MirrorObject, len(mirror))
	for _, obj := range mirror {
		k := obj.Parsed.Key()
		if prev, ok := latest[k]; !ok || obj.UploadedAt.After(prev.UploadedAt) {
			latest[k] = obj
		}
	}

	referenced := make(map[Key]bool)
	for _, key := range current.Keys() {
		value := current[key]
		if strings.HasPrefix(value, placeholderPrefix) {
			continue
		}
		m := numberPrefix.FindStringSubmatch(value)
		if m == nil {
			continue
		}
		n, _ := strconv.Atoi(m[1])
		k := Key{Number: n, Mobile: strings.Contains(key, ".mobile.")}
		referenced[k] = true

		obj, ok := latest[k]
		if !ok {
			continue
		}
		if clean := obj.CleanPath(); clean != value {
			res.Catalog[key] = clean
			res.Updated = append(res.Updated, CatalogChange{Key: key, OldValue: value, NewValue: clean})
		}
	}

	keys := make([]Key, 0, len(latest))
	for k := range latest {
		if !referenced[k] {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	for _, k := range keys {
		obj := latest[k]
		key := newCatalogKey(res.Catalog, obj.Parsed)
		res.Catalog[key] = obj.CleanPath()
		res.Added = append(res.Added, CatalogChange{Key: key, NewValue: obj.CleanPath()})
	}

	res.KeysAfter = len(res.Catalog)
	if res.KeysAfter < res.KeysBefore {
		return res, ErrCatalogShrunk
	}
	return res, nil
}

// InferCategory assigns an image number to a catalog section.
func InferCategory(number int, title string) string {
	switch {
	case number >= 1 && number <= 8:
		return "hero"
	case number >= 12 && number <= 39:
		return "function"
	case number >= 100 && number <= 199:
		return "configurations"
	case number >= 998:
		return "aboutus"
	}
	lower := strings.ToLower(title)
	if strings.Contains(lower, "house") || strings.Contains(lower, "gallery") {
		return "gallery"
	}
	return "configurations"
}

func newCatalogKey(c Catalog, p ParsedName) string {
	section := InferCategory(p.Number, p.Title)
	if p.Mobile {
		section += ".mobile"
	}
	name := ConstantName(p.Title)
	key := section + "." + name
	if _, taken := c[key]; !taken {
		return key
	}
	key = fmt.Sprintf("%s.%s%d", section, name, p.Number)
	for k := 2; ; k++ {
		if _, taken := c[key]; !taken {
			return key
		}
		key = fmt.Sprintf("%s.%s%d_%d", section, name, p.Number, k)
	}
}

// ConstantName derives a lower camel case identifier from an image title.
//
//	"NEST-Haus-Titelbild" -> "nestHausTitelbild"
func ConstantName(title string) string {
	words := wordSplit.Split(title, -1)
	lower := cases.Lower(language.German)
	upper := cases.Title(language.German)

	var b strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString(lower.String(w))
			continue
		}
		b.WriteString(upper.String(lower.String(w)))
	}
	name := b.String()
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "image" + name
	}
	return name
}
