package shim

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ajaxzhan/mirrorfs/pkg/types"
)

// Resolver maps virtual paths onto absolute host paths under a fixed root.
// It never touches the host.
type Resolver struct {
	root string
}

// NewResolver returns a resolver anchored at root. A relative root is made
// absolute against the working directory.
func NewResolver(root string) (*Resolver, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", types.ErrInvalidPath)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %q: %w", root, err)
	}
	return &Resolver{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute host root.
func (r *Resolver) Root() string {
	return r.root
}

// Resolve maps a virtual path to its host path. "" and "/" resolve to the
// root; a path whose ".." segments would climb above the root is rejected.
func (r *Resolver) Resolve(virtual string) (string, error) {
	rel, err := Clean(virtual)
	if err != nil {
		return "", err
	}
	return r.join(rel), nil
}

// join appends an already-cleaned relative path to the root.
func (r *Resolver) join(rel string) string {
	if rel == "" {
		return r.root
	}
	return filepath.Join(r.root, filepath.FromSlash(rel))
}

// Clean normalizes a virtual path lexically and returns it relative to the
// mount root, without a leading slash ("" for the root itself).
func Clean(virtual string) (string, error) {
	if strings.IndexByte(virtual, 0) >= 0 {
		return "", types.ErrInvalidPath
	}

	parts := make([]string, 0, strings.Count(virtual, "/")+1)
	for _, seg := range strings.Split(virtual, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(parts) == 0 {
				return "", types.ErrEscapesRoot
			}
			parts = parts[:len(parts)-1]
		default:
			parts = append(parts, seg)
		}
	}
	return strings.Join(parts, "/"), nil
}
