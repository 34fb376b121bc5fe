// Package tpl renders the stored section templates: a small mustache-like
// language with {{#if}}, {{#each}} and {{path}} tags.
package tpl

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

const (
	openDelim  = "{{"
	closeDelim = "}}"
)

type nodeKind int

const (
	textNode nodeKind = iota
	varNode
	ifNode
	eachNode
)

type node struct {
	kind     nodeKind
	text     string
	path     string
	children []node
}

// Render evaluates template against ctx. Missing values render as empty
// strings; malformed tags are emitted as written.
func Render(template string, ctx map[string]any) string {
	nodes := parse(template)
	var b strings.Builder
	b.Grow(len(template))
	execute(&b, nodes, scope{root: ctx})
	return b.String()
}

type token struct {
	raw  string
	tag  string
	text bool
}

func tokenize(src string) []token {
	var tokens []token
	for len(src) > 0 {
		start := strings.Index(src, openDelim)
		if start < 0 {
			tokens = append(tokens, token{raw: src, text: true})
			break
		}
		end := strings.Index(src[start+len(openDelim):], closeDelim)
		if end < 0 {
			tokens = append(tokens, token{raw: src, text: true})
			break
		}
		if start > 0 {
			tokens = append(tokens, token{raw: src[:start], text: true})
		}
		end += start + len(openDelim)
		raw := src[start : end+len(closeDelim)]
		tokens = append(tokens, token{raw: raw, tag: strings.TrimSpace(src[start+len(openDelim) : end])})
		src = src[end+len(closeDelim):]
	}
	return tokens
}

func parse(src string) []node {
	p := &parser{tokens: tokenize(src)}
	nodes, _ := p.parseUntil("")
	return nodes
}

type parser struct {
	tokens []token
	pos    int
	open   []string
}

// parseUntil consumes tokens until the closing tag named by closing. The
// boolean reports whether that tag was found.
func (p *parser) parseUntil(closing string) ([]node, bool) {
	var nodes []node
	for p.pos < len(p.tokens) {
		tok := p.tokens[p.pos]
		p.pos++
		if tok.text {
			nodes = append(nodes, node{kind: textNode, text: tok.raw})
			continue
		}

		switch {
		case strings.HasPrefix(tok.tag, "/"):
			name := strings.TrimSpace(tok.tag[1:])
			if name == closing {
				return nodes, true
			}
			if p.isOpen(name) {
				// closes an enclosing block; let that level consume it
				p.pos--
				return nodes, false
			}
			nodes = append(nodes, node{kind: textNode, text: tok.raw})
		case strings.HasPrefix(tok.tag, "#"):
			name, arg, _ := strings.Cut(strings.TrimSpace(tok.tag[1:]), " ")
			arg = strings.TrimSpace(arg)
			var kind nodeKind
			switch name {
			case "if":
				kind = ifNode
			case "each":
				kind = eachNode
			default:
				nodes = append(nodes, node{kind: textNode, text: tok.raw})
				continue
			}
			p.open = append(p.open, name)
			children, closed := p.parseUntil(name)
			p.open = p.open[:len(p.open)-1]
			if !closed || arg == "" {
				nodes = append(nodes, node{kind: textNode, text: tok.raw})
				nodes = append(nodes, children...)
				if closed {
					nodes = append(nodes, node{kind: textNode, text: "{{/" + name + "}}"})
				}
				continue
			}
			nodes = append(nodes, node{kind: kind, path: arg, children: children})
		default:
			if tok.tag == "" {
				nodes = append(nodes, node{kind: textNode, text: tok.raw})
				continue
			}
			nodes = append(nodes, node{kind: varNode, path: tok.tag})
		}
	}
	return nodes, closing == ""
}

func (p *parser) isOpen(name string) bool {
	for _, open := range p.open {
		if open == name {
			return true
		}
	}
	return false
}

type scope struct {
	root   map[string]any
	item   any
	index  int
	inEach bool
}

func execute(b *strings.Builder, nodes []node, s scope) {
	for _, n := range nodes {
		switch n.kind {
		case textNode:
			b.WriteString(n.text)
		case varNode:
			b.WriteString(stringify(s.lookup(n.path)))
		case ifNode:
			if Truthy(s.lookup(n.path)) {
				execute(b, n.children, s)
			}
		case eachNode:
			items := asSlice(s.lookup(n.path))
			for i, item := range items {
				execute(b, n.children, scope{root: s.root, item: item, index: i, inEach: true})
			}
		}
	}
}

func (s scope) lookup(path string) any {
	if s.inEach {
		switch {
		case path == "this":
			return s.item
		case path == "@index":
			return s.index
		case strings.HasPrefix(path, "this."):
			return Lookup(s.item, strings.TrimPrefix(path, "this."))
		}
	}
	return Lookup(s.root, path)
}

// Lookup resolves a dotted path inside nested maps and slices. Numeric
// segments index into slices. It returns nil when any segment is missing.
func Lookup(value any, path string) any {
	if path == "" {
		return value
	}
	current := value
	for _, segment := range strings.Split(path, ".") {
		if current == nil {
			return nil
		}
		switch v := current.(type) {
		case map[string]any:
			current = v[segment]
		default:
			rv := reflect.ValueOf(current)
			switch rv.Kind() {
			case reflect.Map:
				if rv.Type().Key().Kind() != reflect.String {
					return nil
				}
				found := rv.MapIndex(reflect.ValueOf(segment).Convert(rv.Type().Key()))
				if !found.IsValid() {
					return nil
				}
				current = found.Interface()
			case reflect.Slice, reflect.Array:
				idx, err := strconv.Atoi(segment)
				if err != nil || idx < 0 || idx >= rv.Len() {
					return nil
				}
				current = rv.Index(idx).Interface()
			default:
				return nil
			}
		}
	}
	return current
}

// Truthy reports whether value counts as true in an {{#if}} block. False,
// nil, empty strings, zero numbers, and empty slices or maps are falsy.
func Truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	case float64:
		return v != 0
	case int:
		return v != 0
	case json.Number:
		f, err := v.Float64()
		return err != nil || f != 0
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	}
	return true
}

func asSlice(value any) []any {
	switch v := value.(type) {
	case nil:
		return nil
	case []any:
		return v
	case []map[string]any:
		out := make([]any, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// Stringify converts a context value to its rendered text.
func Stringify(value any) string {
	return stringify(value)
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case json.Number:
		return v.String()
	case fmt.Stringer:
		return v.String()
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		parts := make([]string, rv.Len())
		for i := range parts {
			parts[i] = stringify(rv.Index(i).Interface())
		}
		return strings.Join(parts, ",")
	case reflect.Map, reflect.Struct:
		raw, err := json.Marshal(value)
		if err != nil {
			return ""
		}
		return string(raw)
	case reflect.Pointer:
		if rv.IsNil() {
			return ""
		}
		return stringify(rv.Elem().Interface())
	}
	return fmt.Sprint(value)
}
