package structural

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	gotreesitter "github.com/odvcencio/gotreesitter"
	"github.com/odvcencio/gotreesitter/grammars"
)

// errUnsupported is returned by split for files no grammar recognizes.
var errUnsupported = errors.New("unsupported file type")

// headerKey names the text before the first declaration.
const headerKey = "#header"

// segment is a top-level declaration plus the text that follows it up to the
// next declaration. Concatenating every segment of a file reproduces it.
type segment struct {
	key  string
	body []byte
}

var declarationTypes = map[string]bool{
	"function_declaration":  true,
	"method_declaration":    true,
	"type_declaration":      true,
	"var_declaration":       true,
	"const_declaration":     true,
	"function_definition":   true,
	"class_definition":      true,
	"decorated_definition":  true,
	"function_item":         true,
	"struct_item":           true,
	"enum_item":             true,
	"trait_item":            true,
	"impl_item":             true,
	"mod_item":              true,
	"class_declaration":     true,
	"interface_declaration": true,
	"enum_declaration":      true,
	"lexical_declaration":   true,
	"export_statement":      true,
	"method_definition":     true,
}

var nameTypes = map[string]bool{
	"identifier":          true,
	"field_identifier":    true,
	"type_identifier":     true,
	"property_identifier": true,
	"name":                true,
}

// split parses source and cuts it at every top-level declaration.
func split(path string, source []byte) ([]segment, error) {
	if grammars.DetectLanguage(path) == nil {
		return nil, fmt.Errorf("%s: %w", path, errUnsupported)
	}
	if len(source) == 0 {
		return nil, nil
	}
	bt, err := grammars.ParseFile(path, source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	defer bt.Release()

	type cut struct {
		start uint32
		key   string
	}
	var cuts []cut
	seen := make(map[string]int)
	root := bt.RootNode()
	for i := 0; i < root.ChildCount(); i++ {
		child := root.Child(i)
		if child == nil || !isDeclaration(bt, child) {
			continue
		}
		key := declarationKey(bt, child)
		seen[key]++
		if n := seen[key]; n > 1 {
			key += "#" + strconv.Itoa(n)
		}
		cuts = append(cuts, cut{start: child.StartByte(), key: key})
	}
	if len(cuts) == 0 {
		return []segment{{key: headerKey, body: source}}, nil
	}

	var out []segment
	if cuts[0].start > 0 {
		out = append(out, segment{key: headerKey, body: source[:cuts[0].start]})
	}
	for i, c := range cuts {
		end := uint32(len(source))
		if i+1 < len(cuts) {
			end = cuts[i+1].start
		}
		out = append(out, segment{key: c.key, body: source[c.start:end]})
	}
	return out, nil
}

func isDeclaration(bt *gotreesitter.BoundTree, node *gotreesitter.Node) bool {
	nodeType := bt.NodeType(node)
	if declarationTypes[nodeType] {
		return true
	}
	if !node.IsNamed() {
		return false
	}
	return strings.Contains(nodeType, "declaration") || strings.Contains(nodeType, "definition")
}

// declarationKey identifies a declaration across versions of a file by its
// node type, name and, for Go methods, receiver.
func declarationKey(bt *gotreesitter.BoundTree, node *gotreesitter.Node) string {
	nodeType := bt.NodeType(node)
	var receiver string
	if nodeType == "method_declaration" {
		for i := 0; i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if bt.NodeType(child) == "parameter_list" {
				receiver = receiverType(bt.NodeText(child))
				break
			}
		}
	}
	name := firstName(bt, node)
	if receiver != "" {
		return nodeType + ":" + receiver + "." + name
	}
	return nodeType + ":" + name
}

// receiverType reduces "(s *Store)" to "Store".
func receiverType(text string) string {
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimLeft(fields[len(fields)-1], "*")
}

func firstName(bt *gotreesitter.BoundTree, node *gotreesitter.Node) string {
	for i := 0; i < node.ChildCount(); i++ {
		child := node.Child(i)
		if child == nil {
			continue
		}
		if nameTypes[bt.NodeType(child)] {
			return bt.NodeText(child)
		}
		// The receiver list of a Go method holds identifiers too.
		if bt.NodeType(child) == "parameter_list" && bt.NodeType(node) == "method_declaration" {
			continue
		}
		if name := firstName(bt, child); name != "" {
			return name
		}
	}
	return ""
}
