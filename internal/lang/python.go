package lang

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Python is the language every submitted program is read as.
var Python = &Language{
	Name:       "python",
	Extensions: []string{".py"},
	lang:       python.GetLanguage(),
}

func init() {
	Languages[Python.Name] = Python
}

// FirstErrorNode returns the first ERROR or MISSING node under root in
// document order, or nil when the tree is clean.
func FirstErrorNode(root *sitter.Node) *sitter.Node {
	if root == nil || !root.HasError() {
		return nil
	}
	if root.IsError() || root.IsMissing() {
		return root
	}
	for i := 0; i < int(root.ChildCount()); i++ {
		child := root.Child(i)
		if child == nil {
			continue
		}
		if child.IsError() || child.IsMissing() {
			return child
		}
		if child.HasError() {
			if n := FirstErrorNode(child); n != nil {
				return n
			}
		}
	}
	return root
}
