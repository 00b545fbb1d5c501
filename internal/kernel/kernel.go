// Package kernel implements spec.md §4.8's Immutable Kernel: the
// identity/values/safety-constraints/constitution blobs loaded once at
// boot, SHA-256 checksummed, and exposed only through a read-only Node
// view that has no setter — so "deep freeze" is enforced by the type's
// API surface rather than by a runtime write-guard, the idiomatic Go
// translation of the spec's "nested maps/lists become read-only."
// Grounded on the teacher's internal/config/loader.go for the
// read-file → yaml.Unmarshal → map[string]any shape.
package kernel

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ariaworks/aria/internal/errkind"
)

// Node is a read-only handle onto one position in a loaded kernel tree.
// It has no mutating method; every accessor returns either a value or
// another Node, so there is no way to reach the underlying map/slice and
// mutate it in place. Attempting to treat a leaf as a tree (or vice
// versa) returns errkind.ErrKernelImmutable — not because the call
// mutates anything, but because the spec models any malformed access
// into a frozen tree as the same immutability fault.
type Node struct {
	value any
}

func newNode(v any) *Node { return &Node{value: v} }

// Get descends into a map node by key. Returns false if this node is not
// a map or the key is absent.
func (n *Node) Get(key string) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	m, ok := n.value.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	return newNode(v), true
}

// Index descends into a list node by position. Returns false if this
// node is not a list or i is out of range.
func (n *Node) Index(i int) (*Node, bool) {
	if n == nil {
		return nil, false
	}
	list, ok := n.value.([]any)
	if !ok || i < 0 || i >= len(list) {
		return nil, false
	}
	return newNode(list[i]), true
}

// Len reports the length of a list node, or 0 if this is not a list.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	list, ok := n.value.([]any)
	if !ok {
		return 0
	}
	return len(list)
}

// String returns the node's value as a string, or "" if it is not a
// scalar string.
func (n *Node) String() string {
	if n == nil {
		return ""
	}
	s, _ := n.value.(string)
	return s
}

// Raw returns the node's underlying value. Callers must treat the
// result as read-only — Raw exists for logging/serialization, not for
// mutation; Node itself never exposes a way to write back through it.
func (n *Node) Raw() any {
	if n == nil {
		return nil
	}
	return n.value
}

// Set always fails: kernel trees are immutable once loaded, per
// spec.md §4.8. It exists so calling code that mistakenly tries to
// treat a Node as mutable gets a named, typed failure instead of a
// silent no-op or a panic.
func (n *Node) Set(string, any) error {
	return errkind.ErrKernelImmutable
}

// blob is one loaded, checksummed kernel file.
type blob struct {
	path string
	sha  string
	tree *Node
}

// Kernel holds every named blob loaded at boot, per spec.md §3.25's
// "Four named configuration blobs (identity, values, safety
// constraints, constitution)" — generalized here to N named files since
// internal/config.KernelConfig.Paths is a map, not a fixed 4-tuple.
type Kernel struct {
	blobs map[string]blob
}

// Load reads every path in paths (name → file path), SHA-256 checksums
// each, and parses it into a frozen Node tree. Load is meant to run once
// at boot; Kernel holds no mutation path, so there is nothing to reload
// into — a fresh process is the only way to pick up changed files,
// matching "does not auto-reload (operator action required)."
func Load(paths map[string]string) (*Kernel, error) {
	if len(paths) == 0 {
		return nil, errkind.New(errkind.ConfigurationError, "kernel requires at least one named file")
	}
	blobs := make(map[string]blob, len(paths))
	for name, path := range paths {
		b, err := loadBlob(path)
		if err != nil {
			return nil, errkind.Wrap(errkind.ConfigurationError, err, fmt.Sprintf("kernel blob %q", name))
		}
		blobs[name] = b
	}
	return &Kernel{blobs: blobs}, nil
}

func loadBlob(path string) (blob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return blob{}, fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(data)

	var parsed any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return blob{}, fmt.Errorf("parse %s: %w", path, err)
	}
	tree := newNode(normalize(parsed))

	return blob{path: path, sha: hex.EncodeToString(sum[:]), tree: tree}, nil
}

// normalize recursively converts yaml.v3's map[string]interface{} (which
// it already produces for mapping nodes) and []interface{} into the
// map[string]any/[]any shapes Node expects, so Get/Index type-assert
// cleanly regardless of the decoder's exact produced types.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

// Get returns the named blob's root Node, per spec.md §4.8's get()
// operation.
func (k *Kernel) Get(name string) (*Node, bool) {
	b, ok := k.blobs[name]
	if !ok {
		return nil, false
	}
	return b.tree, true
}

// Names returns every loaded blob name, sorted, for deterministic
// iteration (system-prompt assembly order, integrity-check order).
func (k *Kernel) Names() []string {
	names := make([]string, 0, len(k.blobs))
	for name := range k.blobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SystemPrompt renders every loaded blob into the kernel-sourced system
// prompt text the Chat Engine prepends ahead of the agent and session
// prompt sections, per spec.md §4.5 step 3. Blobs render in Names()
// order so the assembled prompt is deterministic across process
// restarts.
func (k *Kernel) SystemPrompt() string {
	names := k.Names()
	sections := make([]string, 0, len(names))
	for _, name := range names {
		sections = append(sections, render(name, k.blobs[name].tree, 0))
	}
	return strings.Join(sections, "\n\n")
}

// render flattens a Node into indented "key: value" text. Kernel blobs
// are small, hand-authored policy documents, not data payloads, so a
// plain indented rendering is the whole of what "system-prompt
// rendering" needs to do.
func render(name string, n *Node, depth int) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteString(":\n")
	renderNode(&b, n, depth+1)
	return strings.TrimRight(b.String(), "\n")
}

func renderNode(b *strings.Builder, n *Node, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := n.Raw().(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			child, _ := n.Get(k)
			if isScalar(child.Raw()) {
				fmt.Fprintf(b, "%s%s: %s\n", indent, k, scalarString(child.Raw()))
			} else {
				fmt.Fprintf(b, "%s%s:\n", indent, k)
				renderNode(b, child, depth+1)
			}
		}
	case []any:
		for i := range v {
			item, _ := n.Index(i)
			if isScalar(item.Raw()) {
				fmt.Fprintf(b, "%s- %s\n", indent, scalarString(item.Raw()))
			} else {
				fmt.Fprintf(b, "%s-\n", indent)
				renderNode(b, item, depth+1)
			}
		}
	default:
		fmt.Fprintf(b, "%s%s\n", indent, scalarString(v))
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case map[string]any, []any:
		return false
	default:
		return true
	}
}

func scalarString(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%v", v)
}

// VerifyIntegrity recomputes every blob's SHA-256 from disk and reports
// whether every file still matches what was loaded at boot — true only
// if every file is present and byte-identical to its load-time
// checksum. It never reloads the in-memory tree, per spec.md §4.8.
func (k *Kernel) VerifyIntegrity() bool {
	for _, b := range k.blobs {
		data, err := os.ReadFile(b.path)
		if err != nil {
			return false
		}
		sum := sha256.Sum256(data)
		if hex.EncodeToString(sum[:]) != b.sha {
			return false
		}
	}
	return true
}

// Checksum returns the loaded SHA-256 for a named blob, hex-encoded.
func (k *Kernel) Checksum(name string) (string, bool) {
	b, ok := k.blobs[name]
	if !ok {
		return "", false
	}
	return b.sha, true
}
