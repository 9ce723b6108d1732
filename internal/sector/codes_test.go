package sector

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	cases := map[string]string{
		"( 01 )":   "01",
		"(62)":     "62",
		"  35 ":    "35",
		"\ufeff10": "10",
		"IT":       "IT",
	}
	for in, want := range cases {
		assert.Equal(t, want, Clean(in), "input %q", in)
	}
}

func TestWhitelist(t *testing.T) {
	w := NewWhitelist([]string{"01", "( 62 )"})
	assert.True(t, w.Allows("01"))
	assert.True(t, w.Allows("62"))
	assert.False(t, w.Allows("99"))
	assert.Equal(t, []string{"01", "62"}, w.Codes())

	var open Whitelist
	assert.True(t, open.Allows("anything"))
	assert.Nil(t, open.Codes())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Energy", Label("35"))
	assert.Equal(t, "XX", Label("XX"))
}
