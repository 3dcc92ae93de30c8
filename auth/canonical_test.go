package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalizeDeterministic(t *testing.T) {
	t.Parallel()

	body := []byte(`{"key":"mk_live_test"}`)
	first, err := Canonicalize("POST", "/keys/verify", "1700000000000", "nonce-1", "acme", body)
	require.NoError(t, err)
	second, err := Canonicalize("POST", "/keys/verify", "1700000000000", "nonce-1", "acme", body)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCanonicalizeUppercasesMethod(t *testing.T) {
	t.Parallel()

	lower, err := Canonicalize("post", "/keys/verify", "1", "n", "", nil)
	require.NoError(t, err)
	upper, err := Canonicalize("POST", "/keys/verify", "1", "n", "", nil)
	require.NoError(t, err)
	assert.Equal(t, upper, lower)
}

func TestCanonicalizeSingleFieldPerturbation(t *testing.T) {
	t.Parallel()

	body := []byte(`{"key":"mk_live_test"}`)
	base, err := Canonicalize("POST", "/keys/verify", "1700000000000", "nonce-1", "acme", body)
	require.NoError(t, err)

	variants := [][]byte{}
	add := func(method, path, ts, nonce, slug string, b []byte) {
		got, err := Canonicalize(method, path, ts, nonce, slug, b)
		require.NoError(t, err)
		variants = append(variants, got)
	}
	add("GET", "/keys/verify", "1700000000000", "nonce-1", "acme", body)
	add("POST", "/keys/redeem", "1700000000000", "nonce-1", "acme", body)
	add("POST", "/keys/verify", "1700000000001", "nonce-1", "acme", body)
	add("POST", "/keys/verify", "1700000000000", "nonce-2", "acme", body)
	add("POST", "/keys/verify", "1700000000000", "nonce-1", "other", body)
	add("POST", "/keys/verify", "1700000000000", "nonce-1", "acme", []byte(`{"key":"mk_live_tesu"}`))

	seen := map[string]struct{}{string(base): {}}
	for _, variant := range variants {
		_, dup := seen[string(variant)]
		assert.False(t, dup, "canonical collision for %q", variant)
		seen[string(variant)] = struct{}{}
	}
}

func TestCanonicalizeNoCaseFoldingOfPath(t *testing.T) {
	t.Parallel()

	lower, err := Canonicalize("POST", "/keys/verify", "1", "n", "", nil)
	require.NoError(t, err)
	upper, err := Canonicalize("POST", "/KEYS/verify", "1", "n", "", nil)
	require.NoError(t, err)
	assert.NotEqual(t, lower, upper)
}

func TestCanonicalizeRejectsInvalidFields(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name                          string
		method, path, ts, nonce, slug string
	}{
		{"empty method", "", "/x", "1", "n", ""},
		{"empty path", "POST", "", "1", "n", ""},
		{"timestamp without nonce", "POST", "/x", "1", "", ""},
		{"nonce without timestamp", "POST", "/x", "", "n", ""},
		{"newline in path", "POST", "/x\n/y", "1", "n", ""},
		{"newline in nonce", "POST", "/x", "1", "n\nn", ""},
		{"newline in slug", "POST", "/x", "1", "n", "a\nb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Canonicalize(tc.method, tc.path, tc.ts, tc.nonce, tc.slug, nil)
			require.ErrorIs(t, err, ErrInvalidField)
		})
	}
}

func TestCanonicalizeAllowsEmptyReplayFields(t *testing.T) {
	t.Parallel()

	got, err := Canonicalize("POST", "/keys/verify", "", "", "", []byte("{}"))
	require.NoError(t, err)
	assert.Contains(t, string(got), "NA1\nPOST\n/keys/verify\n")
}
