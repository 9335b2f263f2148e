package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/queryai/queryai/internal/sampledb"
)

func main() {
	path := flag.String("path", "data/sample.db", "sqlite file to create")
	force := flag.Bool("force", false, "replace the file if it already exists")
	flag.Parse()

	if *force {
		if err := os.Remove(*path); err != nil && !os.IsNotExist(err) {
			_, _ = fmt.Fprintf(os.Stderr, "remove %s: %v\n", *path, err)
			os.Exit(1)
		}
	}
	if err := sampledb.Create(context.Background(), *path); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "create sample database: %v\n", err)
		os.Exit(1)
	}
	_, _ = fmt.Fprintf(os.Stdout, "sample database created at %s\n", *path)
}
