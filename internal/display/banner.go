package display

import (
	"fmt"
	"os"

	"github.com/backmassage/patchshard/internal/term"
)

// PrintBanner prints the ASCII art banner; uses Magenta if colors are enabled.
func PrintBanner() {
	fmt.Fprint(os.Stdout, term.Magenta)
	fmt.Fprint(os.Stdout, `             _       _         _                   _
 _ __   __ _| |_ ___| |__  ___| |__   __ _ _ __ __| |
| '_ \ / _`+"`"+` | __/ __| '_ \/ __| '_ \ / _`+"`"+` | '__/ _`+"`"+` |
| |_) | (_| | || (__| | | \__ \ | | | (_| | | | (_| |
| .__/ \__,_|\__\___|_| |_|___/_| |_|\__,_|_|  \__,_|
|_|
`)
	if term.Enabled() {
		fmt.Fprintln(os.Stdout, term.NC)
	}
}
