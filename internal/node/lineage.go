package node

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DomainLineage separates lineage hashes from any other content hash.
// The version suffix allows the key derivation to change later.
const DomainLineage = "kcibridge/lineage/v1"

// Lineage is the (name, path, group) key identifying the same test across
// repeated runs.
type Lineage struct {
	Name  string   `json:"name"`
	Path  []string `json:"path"`
	Group string   `json:"group"`
}

// Key computes a stable content-addressed key for the lineage.
// Format: hex(SHA256(domain + 0x00 + canonical JSON)).
func (l Lineage) Key() (string, error) {
	path := l.Path
	if path == nil {
		path = []string{}
	}
	canonical, err := MarshalCanonical(Lineage{Name: l.Name, Path: path, Group: l.Group})
	if err != nil {
		return "", fmt.Errorf("lineage key: %w", err)
	}
	h := sha256.New()
	h.Write([]byte(DomainLineage))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// String renders the lineage for log output.
func (l Lineage) String() string {
	return fmt.Sprintf("%s[%s]@%s", l.Name, strings.Join(l.Path, "/"), l.Group)
}
