package route

import (
	"fmt"
	"syscall"
)

// Kind tags the two node variants.
type Kind uint8

const (
	Dir Kind = iota
	File
)

// Attr is the synthesized attribute set for a node. Directories are
// readable and traversable by everyone, files readable by everyone;
// nothing is ever writable.
type Attr struct {
	Mode uint32
	Size uint64
}

// Node is the canonical result type the filesystem adapter understands: a
// directory of child names or a regular file with a byte payload. Nodes
// are constructed whole; there is no partially built state.
type Node struct {
	Kind    Kind
	Entries []string // Dir only, in listing order
	Data    []byte   // File only
}

func NewDir(entries ...string) *Node {
	return &Node{Kind: Dir, Entries: entries}
}

func NewFile(data []byte) *Node {
	return &Node{Kind: File, Data: data}
}

func (n *Node) Attr() Attr {
	if n.Kind == Dir {
		return Attr{Mode: syscall.S_IFDIR | 0o555}
	}
	return Attr{Mode: syscall.S_IFREG | 0o444, Size: uint64(len(n.Data))}
}

// EnsureNode coerces a handler return value into a Node. The recognized
// categories are deliberately enumerated: an existing *Node passes through
// untouched, string slices and []any become directories with their order
// preserved, byte slices and strings become files, and any other scalar
// becomes a file holding its printed form.
func EnsureNode(v any) *Node {
	switch x := v.(type) {
	case *Node:
		return x
	case []string:
		return NewDir(x...)
	case []any:
		entries := make([]string, len(x))
		for i, e := range x {
			entries[i] = fmt.Sprint(e)
		}
		return NewDir(entries...)
	case []byte:
		return NewFile(x)
	case string:
		return NewFile([]byte(x))
	default:
		return NewFile(fmt.Appendf(nil, "%v", v))
	}
}
