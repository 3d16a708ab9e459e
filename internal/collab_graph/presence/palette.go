package presence

import "math/rand"

// Palette is the fixed set of collaborator colors
var Palette = []string{
	"#e6194b", "#3cb44b", "#4363d8", "#f58231",
	"#911eb4", "#42d4f4", "#f032e6", "#bfef45",
	"#469990", "#9a6324", "#800000", "#000075",
}

// pickColor returns the first palette color not in used, scanning from a
// random offset. When every color is taken the offset color is reused.
func pickColor(rng *rand.Rand, used map[string]bool) string {
	start := rng.Intn(len(Palette))
	for i := range Palette {
		c := Palette[(start+i)%len(Palette)]
		if !used[c] {
			return c
		}
	}
	return Palette[start]
}
