package model

import "github.com/vanderheijden86/composer/pkg/metrics"

// HierarchyNode is the view-level projection of an entity. Nodes are rebuilt
// from the entity list whenever it changes; the core never reparents them.
type HierarchyNode struct {
	ID         string
	ParentID   string // "" for roots
	Kind       EntityKind
	Depth      int // 0 for roots
	IsExpanded bool
	IsEditing  bool
	ChildIDs   []string
}

// IsRoot reports whether the node has no resolvable parent.
func (n *HierarchyNode) IsRoot() bool { return n.ParentID == "" }

// HasChildren reports whether the node can be expanded.
func (n *HierarchyNode) HasChildren() bool { return len(n.ChildIDs) > 0 }

// Hierarchy is a forest of HierarchyNodes keyed by id.
type Hierarchy struct {
	Nodes map[string]*HierarchyNode
	Roots []string
}

// BuildHierarchy constructs the view forest from a flat entity list.
//
// Children keep input order. An entity whose parent is empty, missing or
// itself becomes a root. Duplicate ids keep the first occurrence. Entities
// caught in a parent cycle stay in Nodes with their ParentID but are not
// reachable from Roots.
func BuildHierarchy(entities []Entity) *Hierarchy {
	defer metrics.Timer(metrics.HierarchyBuild)()
	h := &Hierarchy{Nodes: make(map[string]*HierarchyNode, len(entities))}

	order := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.ID == "" {
			continue
		}
		if _, dup := h.Nodes[e.ID]; dup {
			continue
		}
		h.Nodes[e.ID] = &HierarchyNode{ID: e.ID, ParentID: e.ParentID, Kind: e.Kind}
		order = append(order, e.ID)
	}

	for _, id := range order {
		node := h.Nodes[id]
		parent, ok := h.Nodes[node.ParentID]
		if node.ParentID == "" || node.ParentID == id || !ok {
			node.ParentID = ""
			h.Roots = append(h.Roots, id)
			continue
		}
		parent.ChildIDs = append(parent.ChildIDs, id)
	}

	for _, id := range order {
		h.Nodes[id].Depth = h.depthOf(id)
	}
	return h
}

// depthOf counts resolvable ancestors, stopping at the first revisit.
func (h *Hierarchy) depthOf(id string) int {
	seen := map[string]bool{id: true}
	depth := 0
	cur := h.Nodes[id]
	for cur != nil && cur.ParentID != "" {
		if seen[cur.ParentID] {
			break
		}
		seen[cur.ParentID] = true
		cur = h.Nodes[cur.ParentID]
		if cur == nil {
			break
		}
		depth++
	}
	return depth
}

// Len returns the number of nodes.
func (h *Hierarchy) Len() int {
	if h == nil {
		return 0
	}
	return len(h.Nodes)
}

// Node looks up a node by id.
func (h *Hierarchy) Node(id string) (*HierarchyNode, bool) {
	if h == nil {
		return nil, false
	}
	n, ok := h.Nodes[id]
	return n, ok
}

// Has reports whether id is part of the hierarchy.
func (h *Hierarchy) Has(id string) bool {
	_, ok := h.Node(id)
	return ok
}

// Visible returns the nodes a renderer would show, in display order: every
// root, plus the children of each node for which expanded returns true.
func (h *Hierarchy) Visible(expanded func(id string) bool) []*HierarchyNode {
	if h == nil {
		return nil
	}
	var out []*HierarchyNode
	var walk func(id string)
	walk = func(id string) {
		node, ok := h.Nodes[id]
		if !ok {
			return
		}
		out = append(out, node)
		if expanded(id) {
			for _, child := range node.ChildIDs {
				walk(child)
			}
		}
	}
	for _, root := range h.Roots {
		walk(root)
	}
	return out
}

// Descendants returns every node below id in depth-first order.
func (h *Hierarchy) Descendants(id string) []string {
	node, ok := h.Node(id)
	if !ok {
		return nil
	}
	var out []string
	seen := map[string]bool{id: true}
	var walk func(n *HierarchyNode)
	walk = func(n *HierarchyNode) {
		for _, child := range n.ChildIDs {
			if seen[child] {
				continue
			}
			seen[child] = true
			out = append(out, child)
			if c, ok := h.Nodes[child]; ok {
				walk(c)
			}
		}
	}
	walk(node)
	return out
}

// IndexEntities maps entities by id, keeping the first of any duplicates.
func IndexEntities(entities []Entity) map[string]Entity {
	out := make(map[string]Entity, len(entities))
	for _, e := range entities {
		if _, dup := out[e.ID]; !dup && e.ID != "" {
			out[e.ID] = e
		}
	}
	return out
}
