package imagesync

import (
	"sort"

	"github.com/shopspring/decimal"
)

// DefaultMaxDeleteFraction is the share of mirror objects a single run may delete.
const DefaultMaxDeleteFraction = 0.10

// Policy bounds the destructive part of a plan.
type Policy struct {
	MaxDeleteFraction float64
	Protected         *ProtectionList
}

// Update replaces a mirror object whose title drifted from its source.
type Update struct {
	Source SourceImage
	Mirror MirrorObject
}

// Plan is the reconciliation result between Drive (source) and blob storage (mirror).
type Plan struct {
	Uploads   []SourceImage
	Updates   []Update
	Deletes   []MirrorObject
	Protected []MirrorObject
	// Duplicates are source images superseded by a newer file with the same key.
	Duplicates []SourceImage
	Unparsed   []string
	Unchanged  int

	SourceSize        int
	MirrorSize        int
	DeleteCap         int
	MaxDeleteFraction float64
}

// HasChanges reports whether executing the plan would mutate storage.
func (p *Plan) HasChanges() bool {
	return len(p.Uploads) > 0 || len(p.Updates) > 0 || len(p.Deletes) > 0
}

// Validate fails closed when the delete set exceeds the cap.
// An empty mirror never exceeds it.
func (p *Plan) Validate() error {
	if p.MirrorSize == 0 {
		return nil
	}
	if len(p.Deletes) > p.DeleteCap {
		return &CapExceededError{
			Deletes:    len(p.Deletes),
			Cap:        p.DeleteCap,
			MirrorSize: p.MirrorSize,
			Fraction:   p.MaxDeleteFraction,
		}
	}
	return nil
}

// DeleteCap returns floor(fraction * mirrorSize).
func DeleteCap(fraction float64, mirrorSize int) int {
	if fraction <= 0 || mirrorSize <= 0 {
		return 0
	}
	return int(decimal.NewFromFloat(fraction).Mul(decimal.NewFromInt(int64(mirrorSize))).Floor().IntPart())
}

// BuildPlan diffs source against mirror by composite key. It returns
// ErrEmptySource when the source is empty; the deletion cap is checked
// separately by Plan.Validate so the plan can be previewed first.
func BuildPlan(source []SourceImage, mirror MirrorListing, policy Policy) (*Plan, error) {
	if len(source) == 0 {
		return nil, ErrEmptySource
	}

	fraction := policy.MaxDeleteFraction
	if fraction < 0 {
		fraction = 0
	}

	plan := &Plan{
		Unparsed:          append([]string(nil), mirror.Unparsed...),
		SourceSize:        len(source),
		MirrorSize:        len(mirror.Objects),
		MaxDeleteFraction: fraction,
	}
	plan.DeleteCap = DeleteCap(fraction, plan.MirrorSize)

	wanted := make(map[Key]SourceImage, len(source))
	for _, img := range source {
		k := img.Parsed.Key()
		current, seen := wanted[k]
		switch {
		case !seen:
			wanted[k] = img
		case img.ModifiedTime.After(current.ModifiedTime):
			plan.Duplicates = append(plan.Duplicates, current)
			wanted[k] = img
		default:
			plan.Duplicates = append(plan.Duplicates, img)
		}
	}

	// Several mirror objects for one key: the newest is kept, older copies become delete candidates.
	existing := make(map[Key]MirrorObject, len(mirror.Objects))
	var candidates []MirrorObject
	for _, obj := range mirror.Objects {
		k := obj.Parsed.Key()
		current, seen := existing[k]
		switch {
		case !seen:
			existing[k] = obj
		case obj.UploadedAt.After(current.UploadedAt):
			candidates = append(candidates, current)
			existing[k] = obj
		default:
			candidates = append(candidates, obj)
		}
	}

	for k, src := range wanted {
		obj, ok := existing[k]
		switch {
		case !ok:
			plan.Uploads = append(plan.Uploads, src)
		case obj.Parsed.Title != src.Parsed.Title:
			plan.Updates = append(plan.Updates, Update{Source: src, Mirror: obj})
		default:
			plan.Unchanged++
		}
	}
	for k, obj := range existing {
		if _, ok := wanted[k]; !ok {
			candidates = append(candidates, obj)
		}
	}

	for _, obj := range candidates {
		if policy.Protected.Protects(obj) {
			plan.Protected = append(plan.Protected, obj)
			continue
		}
		plan.Deletes = append(plan.Deletes, obj)
	}

	plan.sort()
	return plan, nil
}

func (p *Plan) sort() {
	sortSources(p.Uploads)
	sortSources(p.Duplicates)
	sort.Slice(p.Updates, func(i, j int) bool {
		return p.Updates[i].Source.Parsed.Key().Less(p.Updates[j].Source.Parsed.Key())
	})
	sortMirror(p.Deletes)
	sortMirror(p.Protected)
	sort.Strings(p.Unparsed)
}

func sortSources(images []SourceImage) {
	sort.Slice(images, func(i, j int) bool {
		ki, kj := images[i].Parsed.Key(), images[j].Parsed.Key()
		if ki != kj {
			return ki.Less(kj)
		}
		return images[i].ID < images[j].ID
	})
}

func sortMirror(objects []MirrorObject) {
	sort.Slice(objects, func(i, j int) bool {
		ki, kj := objects[i].Parsed.Key(), objects[j].Parsed.Key()
		if ki != kj {
			return ki.Less(kj)
		}
		return objects[i].Key < objects[j].Key
	})
}
