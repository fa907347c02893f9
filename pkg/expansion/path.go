// Package expansion tracks which hierarchy nodes are open and reveals a
// target node by expanding its ancestors.
package expansion

import (
	"slices"

	"github.com/vanderheijden86/composer/pkg/model"
)

// Path returns the ancestors that must be expanded for target to be
// visible, outermost first. The target itself is not included, so a root
// (or an unknown id) yields an empty path.
//
// The walk stops at the first parent that is missing from nodes or was
// already visited, so malformed maps produce a partial path instead of
// looping.
func Path(target string, nodes map[string]*model.HierarchyNode) []string {
	node, ok := nodes[target]
	if !ok {
		return []string{}
	}
	seen := map[string]bool{target: true}
	path := []string{}
	for parent := node.ParentID; parent != ""; {
		if seen[parent] {
			break
		}
		seen[parent] = true
		p, ok := nodes[parent]
		if !ok {
			break
		}
		path = append(path, parent)
		parent = p.ParentID
	}
	slices.Reverse(path)
	return path
}
