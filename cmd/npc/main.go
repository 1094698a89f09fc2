// Command npc talks to a character from the terminal, either one exchange
// at a time or as a multi-turn conversation over stdin/stdout.
package main

import (
	"fmt"
	"os"
)

func main() {
	app := &App{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	if err := app.RootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
