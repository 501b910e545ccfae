package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	jsoniter "github.com/json-iterator/go"

	"github.com/wippyai/mojo-wire/codec"
	"github.com/wippyai/mojo-wire/schema"
)

var (
	json     jsoniter.API
	jsonOnce sync.Once
)

func jsonLibrary() jsoniter.API {
	jsonOnce.Do(func() {
		json = jsoniter.ConfigCompatibleWithStandardLibrary
	})
	return json
}

func writeJSON(out io.Writer, v any) error {
	b, err := jsonLibrary().MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(b))
	return err
}

// node is one line of the decoded value tree.
type node struct {
	name     string
	typ      string
	value    string
	null     bool
	children []node
}

func describeMessage(msg *codec.Message, s *schema.Struct) node {
	h := msg.Header
	hdr := node{name: "header", typ: fmt.Sprintf("v%d", h.Version), children: []node{
		leafNode("interface_id", "uint32", strconv.FormatUint(uint64(h.InterfaceID), 10)),
		leafNode("name", "uint32", strconv.FormatUint(uint64(h.Name), 10)),
		leafNode("flags", "uint32", flagNames(h.Flags)),
	}}
	if h.Version >= 1 {
		hdr.children = append(hdr.children, leafNode("request_id", "uint64", strconv.FormatUint(h.RequestID, 10)))
	}
	if h.Version >= 2 {
		if h.InterfaceIDs == nil {
			hdr.children = append(hdr.children, node{name: "interface_ids", typ: "array<uint32>", null: true})
		} else {
			ids := make([]string, len(h.InterfaceIDs))
			for i, id := range h.InterfaceIDs {
				ids[i] = strconv.FormatUint(uint64(id), 10)
			}
			hdr.children = append(hdr.children, leafNode("interface_ids", "array<uint32>", "["+strings.Join(ids, ", ")+"]"))
		}
	}
	if h.Version >= 3 {
		hdr.children = append(hdr.children, leafNode("creation_timeticks", "int64", strconv.FormatInt(h.CreationTimeTicks, 10)))
	}
	return node{name: "message", children: []node{hdr, describe("payload", s, msg.Payload)}}
}

func flagNames(f codec.MessageFlags) string {
	if f == 0 {
		return "0"
	}
	var names []string
	for _, fl := range []struct {
		bit  codec.MessageFlags
		name string
	}{
		{codec.FlagExpectsResponse, "expects_response"},
		{codec.FlagIsResponse, "is_response"},
		{codec.FlagIsSync, "is_sync"},
		{codec.FlagNoInterrupt, "no_interrupt"},
	} {
		if f.Has(fl.bit) {
			names = append(names, fl.name)
		}
	}
	return strings.Join(names, "|")
}

func leafNode(name, typ, value string) node {
	return node{name: name, typ: typ, value: value}
}

// describe builds the tree for v decoded as t.
func describe(name string, t schema.Type, v any) node {
	n := node{name: name, typ: t.String()}
	if v == nil {
		n.null = true
		return n
	}

	switch t := t.(type) {
	case *schema.Struct:
		sv := v.(*codec.StructValue)
		n.typ = fmt.Sprintf("%s v%d", t.Name, sv.Version)
		for i, f := range t.Fields {
			var fv any
			if i < len(sv.Fields) {
				fv = sv.Fields[i]
			}
			n.children = append(n.children, describe(f.Name, f.Type, fv))
		}
	case *schema.Union:
		uv := v.(*codec.UnionValue)
		if uv.Unknown {
			n.value = fmt.Sprintf("unknown tag %d raw 0x%016x", uv.Tag, uv.Raw)
			return n
		}
		variant, ok := t.Variant(uv.Tag)
		if !ok {
			n.value = fmt.Sprintf("tag %d", uv.Tag)
			return n
		}
		n.children = append(n.children, describe(variant.Name, variant.Type, uv.Value))
	case *schema.Array:
		switch elems := v.(type) {
		case []byte:
			n.value = fmt.Sprintf("%d bytes %s", len(elems), hex.EncodeToString(elems))
		case []any:
			for i, e := range elems {
				n.children = append(n.children, describe("["+strconv.Itoa(i)+"]", t.Elem, e))
			}
			if len(elems) == 0 {
				n.value = "[]"
			}
		}
	case *schema.Map:
		mv := v.(*codec.MapValue)
		for i, k := range mv.Keys {
			n.children = append(n.children, describe("["+mapKey(k)+"]", t.Value, mv.Values[i]))
		}
		if mv.Len() == 0 {
			n.value = "{}"
		}
	case *schema.Enum:
		x := v.(int32)
		n.value = strconv.FormatInt(int64(x), 10)
		if !t.Contains(x) {
			n.value += " (undeclared)"
		}
	case schema.String:
		n.value = strconv.Quote(v.(string))
	case schema.Handle:
		ref := v.(codec.HandleRef)
		if !ref.Valid() {
			n.null = true
			return n
		}
		n.value = "#" + strconv.FormatUint(uint64(ref), 10)
	default:
		n.value = fmt.Sprint(v)
	}
	return n
}

// renderText writes the tree as indented lines.
func renderText(b *strings.Builder, n node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(paint(nameStyle, n.name))
	if n.typ != "" {
		b.WriteString(" ")
		b.WriteString(paint(typeStyle, n.typ))
	}
	switch {
	case n.null:
		b.WriteString(" = ")
		b.WriteString(paint(nullStyle, "null"))
	case n.value != "":
		b.WriteString(" = ")
		b.WriteString(paint(valueStyle, n.value))
	}
	b.WriteString("\n")
	for _, c := range n.children {
		renderText(b, c, depth+1)
	}
}

// jsonValue converts v decoded as t into plain maps and slices for JSON
// output. Struct fields are keyed by name.
func jsonValue(t schema.Type, v any) any {
	if v == nil {
		return nil
	}
	switch t := t.(type) {
	case *schema.Struct:
		sv := v.(*codec.StructValue)
		out := make(map[string]any, len(t.Fields))
		for i, f := range t.Fields {
			if i < len(sv.Fields) {
				out[f.Name] = jsonValue(f.Type, sv.Fields[i])
			}
		}
		return out
	case *schema.Union:
		uv := v.(*codec.UnionValue)
		if uv.Unknown {
			return map[string]any{"tag": uv.Tag, "raw": uv.Raw}
		}
		variant, ok := t.Variant(uv.Tag)
		if !ok {
			return map[string]any{"tag": uv.Tag}
		}
		return map[string]any{variant.Name: jsonValue(variant.Type, uv.Value)}
	case *schema.Array:
		switch elems := v.(type) {
		case []byte:
			return hex.EncodeToString(elems)
		case []any:
			out := make([]any, len(elems))
			for i, e := range elems {
				out[i] = jsonValue(t.Elem, e)
			}
			return out
		}
		return nil
	case *schema.Map:
		mv := v.(*codec.MapValue)
		if _, ok := t.Key.(schema.String); ok {
			out := make(map[string]any, mv.Len())
			for i, k := range mv.Keys {
				out[k.(string)] = jsonValue(t.Value, mv.Values[i])
			}
			return out
		}
		out := make([]any, mv.Len())
		for i, k := range mv.Keys {
			out[i] = map[string]any{"key": k, "value": jsonValue(t.Value, mv.Values[i])}
		}
		return out
	case schema.Handle:
		ref := v.(codec.HandleRef)
		if !ref.Valid() {
			return nil
		}
		return uint32(ref)
	default:
		return v
	}
}

// mapKey formats a map key for display; strings are quoted.
func mapKey(k any) string {
	if s, ok := k.(string); ok {
		return strconv.Quote(s)
	}
	return fmt.Sprint(k)
}

func messageJSON(msg *codec.Message, s *schema.Struct) map[string]any {
	h := msg.Header
	hdr := map[string]any{
		"version":      h.Version,
		"interface_id": h.InterfaceID,
		"name":         h.Name,
		"flags":        uint32(h.Flags),
	}
	if h.Version >= 1 {
		hdr["request_id"] = h.RequestID
	}
	if h.Version >= 2 {
		hdr["interface_ids"] = h.InterfaceIDs
	}
	if h.Version >= 3 {
		hdr["creation_timeticks"] = h.CreationTimeTicks
	}
	return map[string]any{"header": hdr, "payload": jsonValue(s, msg.Payload)}
}
