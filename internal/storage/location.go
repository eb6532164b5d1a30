package storage

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrInvalidLocation is returned for roots that cannot be parsed.
var ErrInvalidLocation = errors.New("invalid storage location")

type Kind string

const (
	KindLocal Kind = "local"
	KindS3    Kind = "s3"
)

// Location is a parsed input or output root.
type Location struct {
	Kind   Kind
	Bucket string
	// Prefix is the key prefix inside Bucket, without leading slash and with a trailing one when non-empty.
	Prefix string
	// Path is the absolute directory for local locations.
	Path string
	Raw  string
}

func (l Location) String() string {
	switch l.Kind {
	case KindS3:
		return "s3://" + l.Bucket + "/" + l.Prefix
	default:
		return l.Path
	}
}

// ParseLocation accepts s3://, s3a:// and s3n:// URLs, file:// URLs and plain
// filesystem paths.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty", ErrInvalidLocation)
	}

	if !strings.Contains(raw, "://") {
		abs, err := filepath.Abs(raw)
		if err != nil {
			return Location{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, raw, err)
		}
		return Location{Kind: KindLocal, Path: abs, Raw: raw}, nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %s: %v", ErrInvalidLocation, raw, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3", "s3a", "s3n":
		if u.Host == "" {
			return Location{}, fmt.Errorf("%w: %s: missing bucket", ErrInvalidLocation, raw)
		}
		prefix := strings.TrimPrefix(u.Path, "/")
		if prefix != "" && !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		return Location{Kind: KindS3, Bucket: u.Host, Prefix: prefix, Raw: raw}, nil
	case "file":
		if u.Path == "" {
			return Location{}, fmt.Errorf("%w: %s: missing path", ErrInvalidLocation, raw)
		}
		return Location{Kind: KindLocal, Path: filepath.Clean(u.Path), Raw: raw}, nil
	default:
		return Location{}, fmt.Errorf("%w: %s: unsupported scheme %q", ErrInvalidLocation, raw, u.Scheme)
	}
}
