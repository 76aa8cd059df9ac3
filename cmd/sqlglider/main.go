// Command sqlglider extracts SQL column lineage and builds queryable
// cross-file lineage graphs.
package main

import (
	"os"

	"github.com/sqlglider/sqlglider/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
