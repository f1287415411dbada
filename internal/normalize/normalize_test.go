package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"blank", "   ", ""},
		{"lowercase", "Gladiator", "gladiator"},
		{"punctuation removed not spaced", "Spider-Man: No Way Home", "spiderman no way home"},
		{"whitespace collapsed", "  The   Godfather\tPart II ", "the godfather part ii"},
		{"keeps underscore and digits", "2001: A_Space Odyssey", "2001 a_space odyssey"},
		{"keeps accented letters", "Amélie", "amélie"},
		{"full width folded", "ＷＡＬＬ·Ｅ", "walle"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Title(tt.in))
		})
	}
}

func TestLooseStripsDiacritics(t *testing.T) {
	assert.Equal(t, "amelie", Loose("Amélie"))
	assert.Equal(t, "y tu mama tambien", Loose("Y Tu Mamá También"))
}
