package dbtypes

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// ImageRef points at one item image: either an external URL (scraped metadata)
// or a path inside the managed storage bucket. Exactly one field is set.
type ImageRef struct {
	URL         string `json:"url,omitempty"`
	StoragePath string `json:"storage_path,omitempty"`
}

// External reports whether the image lives outside the managed bucket.
func (r ImageRef) External() bool {
	return r.URL != "" && r.StoragePath == ""
}

// ImageRefs is the jsonb-backed image list on an item.
type ImageRefs []ImageRef

func (a *ImageRefs) Scan(src any) error {
	if src == nil {
		*a = ImageRefs{}
		return nil
	}

	switch v := src.(type) {
	case string:
		return a.parseFromString(v)
	case []byte:
		return a.parseFromString(string(v))
	default:
		return fmt.Errorf("ImageRefs: unsupported Scan type %T", src)
	}
}

func (a ImageRefs) Value() (driver.Value, error) {
	if len(a) == 0 {
		return "[]", nil
	}
	raw, err := json.Marshal([]ImageRef(a))
	if err != nil {
		return nil, fmt.Errorf("ImageRefs: marshal: %w", err)
	}
	return string(raw), nil
}

// Contains reports whether an equivalent reference is already present.
func (a ImageRefs) Contains(ref ImageRef) bool {
	for _, candidate := range a {
		if candidate == ref {
			return true
		}
	}
	return false
}

// StoragePaths returns the managed-bucket paths in the list.
func (a ImageRefs) StoragePaths() []string {
	paths := make([]string, 0, len(a))
	for _, ref := range a {
		if ref.StoragePath != "" {
			paths = append(paths, ref.StoragePath)
		}
	}
	return paths
}

func (a *ImageRefs) parseFromString(s string) error {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" || s == "null" {
		*a = ImageRefs{}
		return nil
	}
	var out []ImageRef
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return fmt.Errorf("ImageRefs: parse: %w", err)
	}
	*a = ImageRefs(out)
	return nil
}
