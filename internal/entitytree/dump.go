package entitytree

import (
	"fmt"
	"io"
	"strings"
)

// Dump writes an indented, human readable rendering of the tree.
func Dump(w io.Writer, root *Root) {
	for _, op := range root.Operations {
		name := op.Name
		if name == "" {
			name = "(anonymous)"
		}
		fmt.Fprintf(w, "operation %s\n", name)
		for _, e := range op.Entities {
			dumpEntity(w, e, 1)
		}
	}
}

func dumpEntity(w io.Writer, e *Entity, depth int) {
	indent := strings.Repeat("  ", depth)
	name := e.Name
	if name == "" {
		name = "?"
	}
	fmt.Fprintf(w, "%sentity %s%s\n", indent, name, sizeSuffix(e.Size))
	for _, p := range e.Properties {
		fmt.Fprintf(w, "%s  %s%s\n", indent, p.Name, sizeSuffix(p.Size))
	}
	for _, rel := range e.Relationships {
		fmt.Fprintf(w, "%s  %s (%s)\n", indent, rel.Name, rel.Relation)
		if rel.IsPolymorphic() {
			for _, c := range rel.Candidates {
				dumpEntity(w, c, depth+2)
			}
			continue
		}
		if rel.Entity != nil {
			dumpEntity(w, rel.Entity, depth+2)
		}
	}
}

func sizeSuffix(size int) string {
	if size == UnknownSize {
		return ""
	}
	return fmt.Sprintf(" [%d bytes]", size)
}
