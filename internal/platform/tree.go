package platform

import (
	"strings"

	"github.com/chatsync-dev/chatsync/internal/store"
)

// flattenMapping walks a ChatGPT message tree from the root along the
// first-child edge at each node and returns the path in chronological
// order. Sibling branches (regenerated answers) are ignored, as are
// system/tool nodes and nodes with no text.
func flattenMapping(mapping map[string]chatgptNode) []store.Message {
	root := findRoot(mapping)
	if root == "" {
		return nil
	}

	var out []store.Message
	seen := make(map[string]bool, len(mapping))
	for cur := root; cur != "" && !seen[cur]; {
		seen[cur] = true
		node, ok := mapping[cur]
		if !ok {
			break
		}
		if m := node.Message; m != nil {
			role := m.Author.Role
			text := m.text()
			if (role == store.RoleUser || role == store.RoleAssistant) && strings.TrimSpace(text) != "" {
				out = append(out, store.Message{
					ID:         m.ID,
					Role:       role,
					Content:    text,
					CreateTime: m.CreateTime.unixMilli(),
				})
			}
		}
		if len(node.Children) == 0 {
			break
		}
		cur = node.Children[0]
	}
	return out
}

// findRoot picks the node with no parent, falling back to a node whose
// parent is missing from the mapping (truncated exports).
func findRoot(mapping map[string]chatgptNode) string {
	orphan := ""
	for id, node := range mapping {
		if node.Parent == "" {
			return id
		}
		if _, ok := mapping[node.Parent]; !ok && orphan == "" {
			orphan = id
		}
	}
	return orphan
}
