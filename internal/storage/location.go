package storage

import "strings"

// LocalScheme names the filesystem backend. Locations never carry it; it is
// the fallback for every string without a registered scheme prefix.
const LocalScheme = "file"

// Location is a parsed target location.
type Location struct {
	// Raw is the location exactly as the task declared it.
	Raw string

	// Scheme selects the backend. LocalScheme for filesystem paths.
	Scheme string

	// Bucket and Key are set for object-storage locations.
	Bucket string
	Key    string

	// Path is set for filesystem locations.
	Path string
}

// IsLocal reports whether the location is a filesystem path.
func (l Location) IsLocal() bool { return l.Scheme == LocalScheme }

func (l Location) String() string { return l.Raw }

// parseObjectURI parses "<scheme>://<bucket>/<key...>".
//
// The bucket/key split happens at the first '/' after the prefix. A missing
// separator, an empty bucket, or an empty key is malformed.
func parseObjectURI(scheme, raw string) (Location, error) {
	rest := strings.TrimPrefix(raw, scheme+"://")
	bucket, key, found := strings.Cut(rest, "/")
	switch {
	case !found:
		return Location{}, malformed(raw, "missing key separator after bucket %q", bucket)
	case bucket == "":
		return Location{}, malformed(raw, "empty bucket")
	case key == "":
		return Location{}, malformed(raw, "empty key in bucket %q", bucket)
	}
	return Location{Raw: raw, Scheme: scheme, Bucket: bucket, Key: key}, nil
}

func localLocation(raw string) (Location, error) {
	if strings.TrimSpace(raw) == "" {
		return Location{}, malformed(raw, "empty path")
	}
	return Location{Raw: raw, Scheme: LocalScheme, Path: raw}, nil
}
