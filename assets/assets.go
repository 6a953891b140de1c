// Package assets embeds the default base settings and rule catalog.
package assets

import (
	"embed"
	"io/fs"
)

//go:embed base rules
var files embed.FS

// Base returns the default base settings directory.
func Base() fs.FS {
	return mustSub("base")
}

// Rules returns the default rule catalog directory.
func Rules() fs.FS {
	return mustSub("rules")
}

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}
