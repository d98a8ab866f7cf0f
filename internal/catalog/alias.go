package catalog

import (
	"regexp"
	"strings"
)

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]`)

// NormalizeAlias collapses a raw field name to its comparison form:
// lowercased, trimmed, all non-alphanumeric characters removed. The
// function is idempotent, so already-normalized input passes through.
func NormalizeAlias(val string) string {
	if val == "" {
		return ""
	}
	return nonAlphanumeric.ReplaceAllString(strings.TrimSpace(strings.ToLower(val)), "")
}

type aliasRef struct {
	targetKey string
	scope     string
	ownerID   string
	vendorID  string
	sourceID  string
}

// Index is a point-in-time view of a tenant's canonical schema, built
// once per processed payload so alias lookups stay in memory.
type Index struct {
	keys    map[string]bool
	aliases map[string][]aliasRef
}

func NewIndex(fields []CanonicalField) *Index {
	idx := &Index{
		keys:    make(map[string]bool, len(fields)),
		aliases: make(map[string][]aliasRef),
	}
	for _, f := range fields {
		idx.keys[f.FieldKey] = true
		for _, a := range f.Aliases {
			idx.aliases[a.AliasNormalized] = append(idx.aliases[a.AliasNormalized], aliasRef{
				targetKey: f.FieldKey,
				scope:     a.Scope,
				ownerID:   a.OwnerID,
				vendorID:  a.VendorID,
				sourceID:  a.SourceID,
			})
		}
	}
	return idx
}

// HasKey reports whether key is part of the canonical schema.
func (idx *Index) HasKey(key string) bool {
	return idx.keys[key]
}

// Resolve finds the canonical field an incoming key maps to. Precedence:
// a source-scoped entry for this source wins over a vendor-scoped entry
// for this vendor, which wins over a global or same-owner entry. The
// first entry at the winning scope is taken.
func (idx *Index) Resolve(rawKey, ownerID, vendorID, sourceID string) (string, bool) {
	matches := idx.aliases[NormalizeAlias(rawKey)]
	if len(matches) == 0 {
		return "", false
	}

	for _, m := range matches {
		if m.scope == ScopeSource && m.sourceID == sourceID {
			return m.targetKey, true
		}
	}
	for _, m := range matches {
		if m.scope == ScopeVendor && m.vendorID == vendorID {
			return m.targetKey, true
		}
	}
	for _, m := range matches {
		if m.scope == ScopeGlobal || m.ownerID == ownerID {
			return m.targetKey, true
		}
	}
	return "", false
}
