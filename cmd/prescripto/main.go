// Command line entry point.
package main

import "github.com/prescripto/prescripto/internal/interfaces/cli"

func main() {
	cli.Execute()
}
