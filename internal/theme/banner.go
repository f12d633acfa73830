package theme

import (
	"fmt"
)

// Banner returns the CLI banner.
func Banner() string {
	const cyan = "\033[36m"
	const magenta = "\033[35m"
	const reset = "\033[0m"

	art := "" +
		magenta + "  ┌─┐┌┬┐┌─┐┬─┐┌─┐┌─┐┬ ┬┬  ┌─┐┌─┐\n" + reset +
		magenta + "  └─┐ │ │ │├┬┘├┤ ├─┘│ ││  └─┐├┤ \n" + reset +
		magenta + "  └─┘ ┴ └─┘┴└─└─┘┴  └─┘┴─┘└─┘└─┘\n" + reset +
		cyan + "  ▁▂▃▅▇ posts → engagement → orders ▇▅▃▂▁\n" + reset
	return art
}

// PrintBanner prints the banner to stdout.
func PrintBanner() {
	fmt.Print(Banner())
}
