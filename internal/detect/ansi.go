package detect

import "strings"

// stripANSI removes CSI escape sequences (ESC '[' ... final-byte) so phrase
// matching isn't fooled by color codes in captured pane output.
func stripANSI(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		ch := runes[i]
		if ch == '\x1b' && i+1 < len(runes) && runes[i+1] == '[' {
			i += 2
			for i < len(runes) && !isASCIIAlpha(runes[i]) {
				i++
			}
			continue
		}
		b.WriteRune(ch)
	}
	return b.String()
}

func isASCIIAlpha(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
}
