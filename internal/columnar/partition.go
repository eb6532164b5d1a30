// Package columnar writes and reads Hive-partitioned parquet tables on a
// storage.Store.
package columnar

import (
	"net/url"
	"strings"
)

// DefaultPartitionValue stands in for an empty partition value, matching what
// Hive-aware engines expect.
const DefaultPartitionValue = "__HIVE_DEFAULT_PARTITION__"

// Column is one name=value path segment.
type Column struct {
	Name  string
	Value string
}

// Partition is an ordered list of partition columns. The zero value is the
// unpartitioned table root.
type Partition []Column

// Path renders the partition as "name=value/name=value".
func (p Partition) Path() string {
	parts := make([]string, 0, len(p))
	for _, c := range p {
		v := c.Value
		if v == "" {
			v = DefaultPartitionValue
		} else {
			v = url.PathEscape(v)
		}
		parts = append(parts, c.Name+"="+v)
	}
	return strings.Join(parts, "/")
}

// Get returns the value of the named column.
func (p Partition) Get(name string) (string, bool) {
	for _, c := range p {
		if c.Name == name {
			return c.Value, true
		}
	}
	return "", false
}

// ParsePartition extracts the name=value directory segments of a key
// relative to the table root. The file name itself is ignored.
func ParsePartition(relKey string) Partition {
	segments := strings.Split(relKey, "/")
	if len(segments) > 0 {
		segments = segments[:len(segments)-1]
	}

	var p Partition
	for _, seg := range segments {
		name, value, ok := strings.Cut(seg, "=")
		if !ok || name == "" {
			continue
		}
		if value == DefaultPartitionValue {
			value = ""
		} else if unescaped, err := url.PathUnescape(value); err == nil {
			value = unescaped
		}
		p = append(p, Column{Name: name, Value: value})
	}
	return p
}
