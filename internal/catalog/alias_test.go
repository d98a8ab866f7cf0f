package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeAlias(t *testing.T) {
	assert.Equal(t, "firstname", NormalizeAlias("First Name"))
	assert.Equal(t, "firstname", NormalizeAlias("first_name"))
	assert.Equal(t, "firstname", NormalizeAlias("  FIRST-NAME  "))
	assert.Equal(t, "phone2", NormalizeAlias("Phone #2"))
	assert.Equal(t, "", NormalizeAlias(""))
	assert.Equal(t, "", NormalizeAlias("___"))
}

func TestNormalizeAlias_Idempotent(t *testing.T) {
	for _, raw := range []string{"First Name", "e-mail Address", "zip_code_5"} {
		once := NormalizeAlias(raw)
		assert.Equal(t, once, NormalizeAlias(once))
	}
}

func TestIndex_HasKey(t *testing.T) {
	idx := NewIndex([]CanonicalField{
		{FieldKey: "email"},
		{FieldKey: "first_name"},
	})

	assert.True(t, idx.HasKey("email"))
	assert.False(t, idx.HasKey("Email"))
	assert.False(t, idx.HasKey("phone"))
}

func TestIndex_Resolve_ScopePrecedence(t *testing.T) {
	idx := NewIndex([]CanonicalField{
		{
			FieldKey: "email_global",
			Aliases: []AliasEntry{
				{AliasNormalized: "mail", Scope: ScopeGlobal},
			},
		},
		{
			FieldKey: "email_vendor",
			Aliases: []AliasEntry{
				{AliasNormalized: "mail", Scope: ScopeVendor, VendorID: "v1"},
			},
		},
		{
			FieldKey: "email_source",
			Aliases: []AliasEntry{
				{AliasNormalized: "mail", Scope: ScopeSource, SourceID: "s1"},
			},
		},
	})

	// source-scoped entry wins for its source
	target, ok := idx.Resolve("Mail", "o1", "v1", "s1")
	assert.True(t, ok)
	assert.Equal(t, "email_source", target)

	// different source falls through to the vendor entry
	target, ok = idx.Resolve("Mail", "o1", "v1", "s2")
	assert.True(t, ok)
	assert.Equal(t, "email_vendor", target)

	// different vendor falls through to global
	target, ok = idx.Resolve("Mail", "o1", "v2", "s2")
	assert.True(t, ok)
	assert.Equal(t, "email_global", target)
}

func TestIndex_Resolve_OwnerMatchActsAsGlobal(t *testing.T) {
	idx := NewIndex([]CanonicalField{
		{
			FieldKey: "phone",
			Aliases: []AliasEntry{
				{AliasNormalized: "tel", Scope: ScopeVendor, VendorID: "other", OwnerID: "o1"},
			},
		},
	})

	// vendor does not match but the owner does
	target, ok := idx.Resolve("Tel.", "o1", "v9", "s9")
	assert.True(t, ok)
	assert.Equal(t, "phone", target)

	_, ok = idx.Resolve("Tel.", "o2", "v9", "s9")
	assert.False(t, ok)
}

func TestIndex_Resolve_NoMatch(t *testing.T) {
	idx := NewIndex(nil)
	_, ok := idx.Resolve("anything", "o", "v", "s")
	assert.False(t, ok)
}
