package core

import "fmt"

// Skipped is a file left out of a Batch and the reason why.
type Skipped struct {
	File   *File
	Reason string
}

// Batch is the ordered list of files an upload run will send.
type Batch struct {
	Files   []*File
	Skipped []Skipped
}

// NewBatch plans an upload run over the tree. Empty files and files larger
// than maxSize are skipped; a maxSize of zero or less disables the check.
func NewBatch(ft *Filetree, maxSize int64) *Batch {
	b := &Batch{}
	for _, f := range ft.FlattenTree() {
		switch {
		case f.size == 0:
			b.Skipped = append(b.Skipped, Skipped{File: f, Reason: "empty file"})
		case maxSize > 0 && f.size > maxSize:
			b.Skipped = append(b.Skipped, Skipped{
				File:   f,
				Reason: fmt.Sprintf("larger than %d bytes", maxSize),
			})
		default:
			b.Files = append(b.Files, f)
		}
	}
	return b
}

// Size is the combined size of the files that will be sent.
func (b *Batch) Size() int64 {
	var total int64
	for _, f := range b.Files {
		total += f.size
	}
	return total
}
