package cluster

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultFileName is the registry file looked up in the working directory.
const DefaultFileName = "tag_clusters.json"

// ErrFallbackIDCollision is returned when Misc must be synthesized but its
// fixed ID already belongs to another cluster.
var ErrFallbackIDCollision = errors.New("cluster: fallback id already used by another cluster")

// RegistryFormatError reports registry content that is not a valid list of
// cluster records.
type RegistryFormatError struct {
	Path string
	Err  error
}

func (e *RegistryFormatError) Error() string {
	return fmt.Sprintf("malformed cluster registry %s: %v", e.Path, e.Err)
}

func (e *RegistryFormatError) Unwrap() error { return e.Err }

// File is a registry persisted as a JSON array.
type File struct {
	Path string
}

// Load reads the registry and guarantees the fallback cluster exists.
// When Misc had to be synthesized the whole registry is written back before
// Load returns and modified is true.
func (f File) Load() (reg Registry, modified bool, err error) {
	reg, err = f.read()
	if err != nil {
		return Registry{}, false, err
	}

	if _, ok := reg.Fallback(); ok {
		return reg, false, nil
	}

	if reg.hasID(FallbackID) {
		return Registry{}, false, fmt.Errorf("%w: id %d in %s", ErrFallbackIDCollision, FallbackID, f.Path)
	}

	reg.Clusters = append(reg.Clusters, newFallbackCluster())
	if err := f.Save(reg); err != nil {
		return Registry{}, false, err
	}
	return reg, true, nil
}

// Save rewrites the full registry with two-space indentation. An existing
// file keeps its permissions; a new one is created 0644.
func (f File) Save(reg Registry) error {
	clusters := reg.Clusters
	if clusters == nil {
		clusters = []TagCluster{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(clusters); err != nil {
		return fmt.Errorf("encoding cluster registry: %w", err)
	}

	perm := os.FileMode(0o644)
	if info, err := os.Stat(f.Path); err == nil {
		perm = info.Mode().Perm()
	}

	// Write to a sibling temp file and rename so readers never see a torn file.
	tmp, err := os.CreateTemp(filepath.Dir(f.Path), filepath.Base(f.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp registry file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cluster registry: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("setting cluster registry mode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing cluster registry: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replacing cluster registry %s: %w", f.Path, err)
	}
	return nil
}

// clusterRecord is the decoding shape of one registry entry. Pointers tell
// a missing id or name apart from a zero value.
type clusterRecord struct {
	ID        *int     `json:"id"`
	Name      *string  `json:"name"`
	Exemplars []string `json:"exemplars"`
	Tags      []string `json:"tags"`
}

func (f File) read() (Registry, error) {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return Registry{}, fmt.Errorf("reading cluster registry: %w", err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return Registry{}, f.formatError(errors.New("expected a JSON array"))
	}

	var records []json.RawMessage
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return Registry{}, f.formatError(err)
	}

	clusters := make([]TagCluster, 0, len(records))
	seen := make(map[int]string, len(records))
	fallbacks := 0
	for i, rec := range records {
		c, err := decodeCluster(rec)
		if err != nil {
			return Registry{}, f.formatError(fmt.Errorf("cluster at index %d: %w", i, err))
		}
		if prev, dup := seen[c.ID]; dup {
			return Registry{}, f.formatError(fmt.Errorf("duplicate cluster id %d (%q and %q)", c.ID, prev, c.Name))
		}
		seen[c.ID] = c.Name
		if c.Name == FallbackName {
			fallbacks++
			if fallbacks > 1 {
				return Registry{}, f.formatError(fmt.Errorf("more than one %q cluster", FallbackName))
			}
		}
		clusters = append(clusters, c)
	}

	return Registry{Clusters: clusters}, nil
}

func (f File) formatError(err error) *RegistryFormatError {
	return &RegistryFormatError{Path: f.Path, Err: err}
}

func decodeCluster(rec json.RawMessage) (TagCluster, error) {
	if bytes.Equal(bytes.TrimSpace(rec), []byte("null")) {
		return TagCluster{}, errors.New("null record")
	}
	var r clusterRecord
	if err := json.Unmarshal(rec, &r); err != nil {
		return TagCluster{}, err
	}
	switch {
	case r.ID == nil:
		return TagCluster{}, errors.New("missing id")
	case r.Name == nil || *r.Name == "":
		return TagCluster{}, errors.New("missing name")
	}

	c := TagCluster{
		ID:        *r.ID,
		Name:      *r.Name,
		Exemplars: r.Exemplars,
		Tags:      r.Tags,
		raw:       append(json.RawMessage(nil), rec...),
	}
	if c.Tags == nil {
		c.Tags = []string{}
	}
	if c.Exemplars == nil {
		c.Exemplars = []string{}
	}
	return c, nil
}
