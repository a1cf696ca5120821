package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// TagList is a list of tags stored as a JSON array in a TEXT column.
type TagList []string

// ClusterIDs is a list of cluster ids stored as a JSON array in a TEXT column.
type ClusterIDs []int

// ParseTagList decodes a stored tag list. NULL, "" and "[]" all yield an
// empty list.
func ParseTagList(raw *string) (TagList, error) {
	var out TagList
	if err := decodeList(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", TripleTagsColumn, err)
	}
	return out, nil
}

// ParseClusterIDs decodes a stored cluster id list. NULL, "" and "[]" all
// yield an empty list.
func ParseClusterIDs(raw *string) (ClusterIDs, error) {
	var out ClusterIDs
	if err := decodeList(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", TopClustersColumn, err)
	}
	return out, nil
}

// Encode returns the compact JSON form. An empty list encodes as "[]".
func (l TagList) Encode() (string, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Encode returns the compact JSON form. An empty list encodes as "[]".
func (c ClusterIDs) Encode() (string, error) {
	if c == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]int(c))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Equal reports whether c and other hold the same ids in the same order.
func (c ClusterIDs) Equal(other ClusterIDs) bool {
	if len(c) != len(other) {
		return false
	}
	for i := range c {
		if c[i] != other[i] {
			return false
		}
	}
	return true
}

// Value implements driver.Valuer.
func (l TagList) Value() (driver.Value, error) { return l.Encode() }

// Value implements driver.Valuer.
func (c ClusterIDs) Value() (driver.Value, error) { return c.Encode() }

// Scan implements sql.Scanner.
func (l *TagList) Scan(src any) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	return decodeList(raw, l)
}

// Scan implements sql.Scanner.
func (c *ClusterIDs) Scan(src any) error {
	raw, err := scanText(src)
	if err != nil {
		return err
	}
	return decodeList(raw, c)
}

func scanText(src any) (*string, error) {
	switch v := src.(type) {
	case nil:
		return nil, nil
	case string:
		return &v, nil
	case []byte:
		s := string(v)
		return &s, nil
	default:
		return nil, fmt.Errorf("unsupported list column type %T", src)
	}
}

func decodeList[S ~[]E, E any](raw *string, dst *S) error {
	*dst = S{}
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil
	}
	var out S
	if err := json.Unmarshal([]byte(*raw), &out); err != nil {
		return err
	}
	if out != nil {
		*dst = out
	}
	return nil
}
