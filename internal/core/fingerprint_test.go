package core

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON(t *testing.T) {
	got, err := CanonicalJSON(json.RawMessage(`{ "b": [1, 2.50, {"z":1,"a":2}], "a": "x<y" }`))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x<y","b":[1,2.50,{"a":2,"z":1}]}`, string(got))
}

func TestCanonicalJSON_Invalid(t *testing.T) {
	_, err := CanonicalJSON(json.RawMessage(`{"a":`))
	require.Error(t, err)
	_, err = CanonicalJSON(json.RawMessage(`{} {}`))
	require.Error(t, err)
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("mock_model", "1.0.0", json.RawMessage(`{"x":1,"y":[1,2]}`))
	require.NoError(t, err)
	b, err := Fingerprint("mock_model", "1.0.0", json.RawMessage("{\n  \"y\": [1,2],\n  \"x\": 1\n}"))
	require.NoError(t, err)
	assert.Equal(t, a, b, "key order and whitespace must not change the fingerprint")
	assert.Len(t, a, 64)

	other, err := Fingerprint("mock_model", "1.1.0", json.RawMessage(`{"x":1,"y":[1,2]}`))
	require.NoError(t, err)
	assert.NotEqual(t, a, other)

	// Separators keep ("ab", "c") and ("a", "bc") apart.
	left, err := Fingerprint("ab", "c", json.RawMessage(`{}`))
	require.NoError(t, err)
	right, err := Fingerprint("a", "bc", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.NotEqual(t, left, right)

	num1, err := Fingerprint("m", "1", json.RawMessage(`{"x":1}`))
	require.NoError(t, err)
	num2, err := Fingerprint("m", "1", json.RawMessage(`{"x":1.0}`))
	require.NoError(t, err)
	assert.NotEqual(t, num1, num2, "number literals are preserved")
}
