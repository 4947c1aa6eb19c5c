// Command nte trains trajectory models from story corpora, plans label
// sequences from them and drives coordinated generation runs.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
