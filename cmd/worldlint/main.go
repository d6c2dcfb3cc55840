// worldlint validates world definition files: parse errors, off-grid items,
// unreachable start poses and criteria problems all fail the build before a
// learner ever opens the world.
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/playgrid/server/internal/data"
)

func main() {
	dir := flag.String("dir", "worlds", "directory of world yaml files")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		matches, err := filepath.Glob(filepath.Join(*dir, "*.yaml"))
		if err != nil {
			fmt.Fprintf(os.Stderr, "worldlint: %v\n", err)
			os.Exit(1)
		}
		paths = matches
	}
	if len(paths) == 0 {
		fmt.Fprintf(os.Stderr, "worldlint: no world files found in %s\n", *dir)
		os.Exit(1)
	}

	failed := 0
	for _, path := range paths {
		def, err := data.LoadWorld(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FAIL  %s: %v\n", path, err)
			failed++
			continue
		}
		fmt.Printf("ok    %s  (%s: %d tiles, %d items)\n", path, def.Name, len(def.Tiles), len(def.Items))
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d world files failed validation\n", failed, len(paths))
		os.Exit(1)
	}
}
