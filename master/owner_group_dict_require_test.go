package master

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// Assertion-heavy dictionary coverage uses testify/require, matching
// how the rest of the pack tests dictionary/codec-style components.
func TestOwnerGroupDictManyEntriesRoundTrip(t *testing.T) {
	dict := NewOwnerGroupDict()
	names := []string{"alice", "bob", "carol", "dave", "eve", "frank"}
	ids := make(map[string]uint8, len(names))
	for _, n := range names {
		ids[n] = dict.GetOrAddOwnerId(n)
	}

	serialized := dict.SerializeOwners()
	require.NotEmpty(t, serialized)

	loaded := NewOwnerGroupDict()
	loaded.LoadOwners(serialized)
	for _, n := range names {
		require.Equal(t, n, loaded.GetOwner(ids[n]), "owner %q did not survive serialize/load", n)
	}

	require.Equal(t, uint8(0), dict.GetOrAddOwnerId(""), "empty owner must map to id 0")
	require.Equal(t, "", loaded.GetOwner(200), "out-of-range id must resolve to empty string")
}

func TestOwnerGroupDictSerializeEmptyDict(t *testing.T) {
	dict := NewOwnerGroupDict()
	serialized := dict.SerializeOwners()
	require.Equal(t, []byte{0}, serialized, "empty dictionary serializes to a single zero count byte")

	loaded := NewOwnerGroupDict()
	loaded.LoadOwners(serialized)
	require.Equal(t, "", loaded.GetOwner(1))
}
