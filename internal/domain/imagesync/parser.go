// Package imagesync holds the pure parts of the Drive to blob image
// synchronization: the filename convention, reconciliation planning and
// the additive image catalog merge.
package imagesync

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// BlobPrefix is the key prefix of every synced image in blob storage.
const BlobPrefix = "images/"

var (
	filenamePattern = regexp.MustCompile(`^(\d+)-(.+?)(?:-[A-Za-z0-9]{20,})?\.([A-Za-z0-9]+)$`)
	mobileToken     = regexp.MustCompile(`(?i)(?:^|[-_ ])mobile(?:$|[-_ ])`)
	hashSuffix      = regexp.MustCompile(`-[A-Za-z0-9]{20,}\.[A-Za-z0-9]+$`)
	extSuffix       = regexp.MustCompile(`\.[A-Za-z0-9]+$`)
)

// Key is the composite identity of an image: its number plus the variant.
type Key struct {
	Number int
	Mobile bool
}

// String renders "<number>:mobile" or "<number>:desktop".
func (k Key) String() string {
	if k.Mobile {
		return fmt.Sprintf("%d:mobile", k.Number)
	}
	return fmt.Sprintf("%d:desktop", k.Number)
}

// Less orders keys by number, desktop before mobile.
func (k Key) Less(other Key) bool {
	if k.Number != other.Number {
		return k.Number < other.Number
	}
	return !k.Mobile && other.Mobile
}

// ParsedName is a filename split along the NUMBER-TITLE[-mobile][-HASH].EXT convention.
type ParsedName struct {
	Number    int    `json:"number"`
	Title     string `json:"title"`
	Extension string `json:"extension"`
	Mobile    bool   `json:"mobile"`
}

// Key returns the composite key of the parsed name.
func (p ParsedName) Key() Key {
	return Key{Number: p.Number, Mobile: p.Mobile}
}

// ParseFilename parses a Drive filename or a blob key. Any directory part is
// ignored. It reports false for names that do not follow the convention.
func ParseFilename(name string) (ParsedName, bool) {
	base := path.Base(strings.TrimSpace(name))
	m := filenamePattern.FindStringSubmatch(base)
	if m == nil {
		return ParsedName{}, false
	}

	number, err := strconv.Atoi(m[1])
	if err != nil {
		return ParsedName{}, false
	}

	title := m[2]
	mobile := mobileToken.MatchString(title)
	if mobile {
		title = strings.Trim(mobileToken.ReplaceAllString(title, "-"), "-_ ")
	}
	if title == "" {
		return ParsedName{}, false
	}

	return ParsedName{
		Number:    number,
		Title:     title,
		Extension: strings.ToLower(m[3]),
		Mobile:    mobile,
	}, true
}

// CleanPath strips the images/ prefix, the hash suffix and the extension from a blob key.
//
//	images/12-Haus-mobile-AbC...xyz.jpg -> 12-Haus-mobile
func CleanPath(blobKey string) string {
	p := strings.TrimPrefix(blobKey, BlobPrefix)
	if hashSuffix.MatchString(p) {
		return hashSuffix.ReplaceAllString(p, "")
	}
	return extSuffix.ReplaceAllString(p, "")
}

// BlobKey builds the storage key for a parsed image and content hash.
func BlobKey(p ParsedName, hash string) string {
	title := p.Title
	if p.Mobile {
		title += "-mobile"
	}
	return fmt.Sprintf("%s%d-%s-%s.%s", BlobPrefix, p.Number, title, hash, p.Extension)
}

// NewContentHash returns a random 26 character alphanumeric suffix.
func NewContentHash() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:26]
}

// ContentType maps an image extension to its MIME type.
func ContentType(ext string) string {
	switch strings.ToLower(ext) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "avif":
		return "image/avif"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	default:
		return "application/octet-stream"
	}
}
