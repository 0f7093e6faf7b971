package imagesync

import "time"

// SourceImage is an image file listed from a Drive folder.
type SourceImage struct {
	ID           string
	Name         string
	Parsed       ParsedName
	ModifiedTime time.Time
	Size         int64
	Recent       bool
}

// MirrorObject is an image stored under the images/ prefix of blob storage.
type MirrorObject struct {
	Key        string
	URL        string
	Size       int64
	UploadedAt time.Time
	Parsed     ParsedName
}

// CleanPath returns the object key without prefix, hash or extension.
func (o MirrorObject) CleanPath() string {
	return CleanPath(o.Key)
}

// MirrorListing is the parsed content of blob storage.
// Keys that do not follow the naming convention end up in Unparsed.
type MirrorListing struct {
	Objects  []MirrorObject
	Unparsed []string
}

// NewMirrorListing parses raw objects, splitting off keys that do not match the convention.
func NewMirrorListing(objects []MirrorObject) MirrorListing {
	listing := MirrorListing{Objects: make([]MirrorObject, 0, len(objects))}
	for _, obj := range objects {
		parsed, ok := ParseFilename(obj.Key)
		if !ok {
			listing.Unparsed = append(listing.Unparsed, obj.Key)
			continue
		}
		obj.Parsed = parsed
		listing.Objects = append(listing.Objects, obj)
	}
	return listing
}

// CountRecent returns how many source images changed inside the lookback window.
func CountRecent(images []SourceImage) int {
	n := 0
	for _, img := range images {
		if img.Recent {
			n++
		}
	}
	return n
}
