package outline

// Node is an Entry with the headings nested below it.
type Node struct {
	Entry
	Children []*Node `json:"children,omitempty"`
}

// Tree nests a flat outline by level. A heading becomes a child of the closest preceding
// heading with a smaller level; skipped levels do not create placeholders.
func Tree(entries []Entry) []*Node {
	var roots []*Node
	var stack []*Node
	for _, e := range entries {
		n := &Node{Entry: e}
		for len(stack) > 0 && stack[len(stack)-1].Level >= e.Level {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, n)
		} else {
			parent := stack[len(stack)-1]
			parent.Children = append(parent.Children, n)
		}
		stack = append(stack, n)
	}
	return roots
}
