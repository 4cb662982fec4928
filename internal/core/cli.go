package core

import (
	"fmt"
	"os"
	"path/filepath"
)

// ValidationError reports an upload argument that cannot be used.
type ValidationError struct {
	Arg   string
	Cause string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid argument %q: %s", e.Arg, e.Cause)
}

// PathKind tells a file argument from a directory argument.
type PathKind int

const (
	PathFile PathKind = iota
	PathDir
)

func (k PathKind) String() string {
	switch k {
	case PathDir:
		return "dir"
	default:
		return "file"
	}
}

// ParsedPath is a cleaned upload argument known to exist.
type ParsedPath struct {
	FullPath string
	Kind     PathKind
}

// ParseArgs resolves upload arguments in order. An argument naming a path
// already seen is dropped; the first unusable argument fails the whole call.
func ParseArgs(args []string) ([]ParsedPath, error) {
	if len(args) == 0 {
		return nil, &ValidationError{Arg: "<files>", Cause: "no files provided"}
	}

	parsed := make([]ParsedPath, 0, len(args))
	seen := make(map[string]struct{}, len(args))
	for _, arg := range args {
		p, err := parseArg(arg)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[p.FullPath]; dup {
			continue
		}
		seen[p.FullPath] = struct{}{}
		parsed = append(parsed, p)
	}
	return parsed, nil
}

func parseArg(arg string) (ParsedPath, error) {
	clean := filepath.Clean(arg)
	info, err := os.Stat(clean)
	switch {
	case err != nil:
		return ParsedPath{}, &ValidationError{Arg: arg, Cause: "not found or not accessible"}
	case info.IsDir():
		return ParsedPath{FullPath: clean, Kind: PathDir}, nil
	case info.Mode().IsRegular():
		return ParsedPath{FullPath: clean, Kind: PathFile}, nil
	default:
		return ParsedPath{}, &ValidationError{Arg: arg, Cause: "not a regular file or directory"}
	}
}
