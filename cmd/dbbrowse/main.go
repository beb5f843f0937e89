// Command dbbrowse browses Postgres, MySQL and SQLite databases.
package main

import (
	"os"

	"github.com/koustreak/dbbrowse/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
