package element

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/artstore/artstore/pkg/element/attr"
)

// storageFilenameTimeLayout renders an ISO-8601 timestamp with millisecond
// precision in a form safe for every filesystem (no colons).
const storageFilenameTimeLayout = "20060102T150405.000"

// maxStorageFilenameLength keeps names under common filesystem limits.
const maxStorageFilenameLength = 200

var unsafeFilenameChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

// SanitizeFilename reduces a client-supplied name to [A-Za-z0-9._-].
func SanitizeFilename(name string) string {
	sanitized := unsafeFilenameChars.ReplaceAllString(name, "_")
	sanitized = strings.Trim(sanitized, ".")
	if sanitized == "" {
		sanitized = "file"
	}
	return sanitized
}

// StorageFilename derives the on-disk name for an upload:
//
//	{sanitized-base}_{uploader}_{timestamp-ms}_{short-random}.{ext}
//
// The random suffix disambiguates same-millisecond uploads of the same
// name. Overlong names are truncated at the base, never the extension.
func StorageFilename(originalName, uploader string, now time.Time) string {
	ext := SanitizeFilename(filepath.Ext(originalName))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	base := SanitizeFilename(strings.TrimSuffix(originalName, filepath.Ext(originalName)))

	suffix := fmt.Sprintf("_%s_%s_%s%s",
		SanitizeFilename(uploader),
		now.UTC().Format(storageFilenameTimeLayout),
		shortRandom(),
		ext)

	if len(base)+len(suffix) > maxStorageFilenameLength {
		keep := maxStorageFilenameLength - len(suffix)
		if keep < 1 {
			keep = 1
		}
		base = base[:keep]
	}
	return base + suffix
}

// AttrFilename returns the sidecar name for a data file.
func AttrFilename(storageFilename string) string {
	return storageFilename + attr.Suffix
}

// StoragePath returns the hierarchical directory for an upload instant,
// YYYY/MM/DD/HH in UTC.
func StoragePath(now time.Time) string {
	return now.UTC().Format("2006/01/02/15")
}

func shortRandom() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// Time-derived fallback if the entropy source is unavailable.
		return fmt.Sprintf("%08x", time.Now().UnixNano()&0xffffffff)
	}
	return hex.EncodeToString(buf)
}
