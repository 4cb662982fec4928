package core

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// Filetree is the set of files named on the command line. Directories are
// walked recursively; several arguments hang off a virtual root.
type Filetree struct {
	Root Node
}

// BuildFiletree reads every parsed argument from disk.
func BuildFiletree(paths []ParsedPath) (*Filetree, error) {
	if len(paths) == 0 {
		return nil, errors.New("no valid paths provided")
	}

	nodes := make([]Node, 0, len(paths))
	for _, p := range paths {
		var (
			n   Node
			err error
		)
		if p.Kind == PathDir {
			n, err = readDir(p.FullPath, nil)
		} else {
			n, err = readFile(p.FullPath, nil)
		}
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}

	if len(nodes) == 1 {
		return &Filetree{Root: nodes[0]}, nil
	}
	return &Filetree{Root: createVirtualRoot(nodes)}, nil
}

func readFile(path string, parent *Dir) (*File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	return &File{path: path, name: filepath.Base(path), size: info.Size(), dir: parent}, nil
}

// readDir loads path recursively. Hidden entries and anything that is not
// a regular file or directory are left out.
func readDir(path string, parent *Dir) (*Dir, error) {
	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}

	d := &Dir{path: path, name: filepath.Base(path), parent: parent, children: []Node{}}
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		child := filepath.Join(path, e.Name())

		var n Node
		switch {
		case e.IsDir():
			n, err = readDir(child, d)
		case e.Type().IsRegular():
			n, err = readFile(child, d)
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		d.children = append(d.children, n)
	}
	return d, nil
}

// createVirtualRoot adopts top-level nodes under a pathless directory.
func createVirtualRoot(children []Node) *Dir {
	root := &Dir{name: "upload", children: children}
	for _, child := range children {
		switch n := child.(type) {
		case *Dir:
			n.parent = root
		case *File:
			n.dir = root
		}
	}
	return root
}

// FlattenTree lists every file in the tree, depth first, in directory order.
func (ft *Filetree) FlattenTree() []*File {
	var files []*File
	var visit func(Node)
	visit = func(n Node) {
		switch v := n.(type) {
		case *File:
			files = append(files, v)
		case *Dir:
			for _, c := range v.children {
				visit(c)
			}
		}
	}
	visit(ft.Root)
	return files
}

// TotalSize is the combined size of every file in the tree.
func (ft *Filetree) TotalSize() int64 {
	var total int64
	for _, f := range ft.FlattenTree() {
		total += f.size
	}
	return total
}
