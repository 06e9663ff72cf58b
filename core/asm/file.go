package asm

import (
	"bytes"

	"github.com/FocuswithJustin/vdbecore/internal/archive"
)

// Load assembles the listing stored at path. Files ending in .xml are XML
// listings; a trailing .gz or .xz is decompressed first.
func Load(path string) (*Listing, error) {
	data, err := archive.ReadListing(path)
	if err != nil {
		return nil, err
	}
	return Assemble(path, data)
}

// Assemble assembles listing data, using name to pick the text or XML form.
func Assemble(name string, data []byte) (*Listing, error) {
	if archive.IsXML(name) {
		return ParseXML(bytes.NewReader(data))
	}
	return Parse(string(data))
}
