package core

import "path/filepath"

// Node is an entry of a Filetree.
type Node interface {
	Path() string
	Name() string
}

type File struct {
	path string
	name string
	size int64
	dir  *Dir
}

type Dir struct {
	path     string
	name     string
	children []Node
	parent   *Dir
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Name() string {
	return f.name
}

func (f *File) Size() int64 {
	return f.size
}

// Display is the file's location relative to the outermost directory it
// was found under, for progress output.
func (f *File) Display() string {
	parts := []string{f.name}
	for d := f.dir; d != nil && !d.virtual(); d = d.parent {
		parts = append([]string{d.name}, parts...)
	}
	return filepath.Join(parts...)
}

func (d *Dir) Path() string {
	return d.path
}

func (d *Dir) Name() string {
	return d.name
}

func (d *Dir) Children() []Node {
	return d.children
}

func (d *Dir) virtual() bool {
	return d.path == ""
}
