// Package cluster holds the tag-cluster registry and the classifier that maps
// a triple's tags onto it.
//
// The registry is a JSON file of named clusters, each with a stable integer
// ID and a set of member tags. It is loaded once per run and passed
// explicitly to the classifier; nothing in this package keeps global state.
package cluster

import "encoding/json"

// Fallback cluster identity. Downstream consumers reference the ID
// directly, so it is a fixed literal.
const (
	FallbackName = "Misc"
	FallbackID   = 20
)

// DefaultTopN is the number of cluster IDs kept per triple.
const DefaultTopN = 3

// fallbackExemplars are the informational terms stored on a synthesized Misc cluster.
var fallbackExemplars = []string{"uncategorized", "other", "miscellaneous"}

// TagCluster is one named group of related tags.
type TagCluster struct {
	ID        int      `json:"id"`
	Name      string   `json:"name"`
	Exemplars []string `json:"exemplars"`
	Tags      []string `json:"tags"`

	// raw is the record as read from the registry file. It is written back
	// verbatim so keys this package does not model survive a rewrite.
	raw json.RawMessage
}

// MarshalJSON emits the original record for clusters read from a file and
// the four modelled fields otherwise.
func (c TagCluster) MarshalJSON() ([]byte, error) {
	if c.raw != nil {
		return c.raw, nil
	}
	type plain TagCluster
	return json.Marshal(plain(c))
}

// Registry is the ordered list of clusters loaded for a run. Order matters:
// the classifier breaks ties by registry position.
type Registry struct {
	Clusters []TagCluster
}

// Len returns the number of clusters.
func (r Registry) Len() int {
	return len(r.Clusters)
}

// Fallback returns the Misc cluster, matched by exact name.
func (r Registry) Fallback() (TagCluster, bool) {
	i := r.indexByName(FallbackName)
	if i < 0 {
		return TagCluster{}, false
	}
	return r.Clusters[i], true
}

// Classify ranks the registry's clusters against tags. See Classify.
func (r Registry) Classify(tags []string, topN int) []int {
	return Classify(tags, r.Clusters, topN)
}

func (r Registry) indexByName(name string) int {
	for i, c := range r.Clusters {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (r Registry) hasID(id int) bool {
	for _, c := range r.Clusters {
		if c.ID == id {
			return true
		}
	}
	return false
}

func newFallbackCluster() TagCluster {
	exemplars := make([]string, len(fallbackExemplars))
	copy(exemplars, fallbackExemplars)
	return TagCluster{
		ID:        FallbackID,
		Name:      FallbackName,
		Exemplars: exemplars,
		Tags:      []string{},
	}
}
