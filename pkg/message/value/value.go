// Package value is the structured value model carried in reply frames and non-scalar request bodies.
//
// Values are immutable once built. Maps keep insertion order, because Gateways that speak the PHP
// serialization format rely on array order when replying with per-connection results.
package value

import (
	"math"
	"strconv"
)

type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	}
	return "unknown"
}

type Entry struct {
	Key   Value
	Value Value
}

type Value struct {
	kind    Kind
	b       bool
	i       int64
	f       float64
	s       string
	items   []Value
	entries []Entry
}

func Null() Value               { return Value{kind: KindNull} }
func Bool(b bool) Value         { return Value{kind: KindBool, b: b} }
func Int(i int64) Value         { return Value{kind: KindInt, i: i} }
func Float(f float64) Value     { return Value{kind: KindFloat, f: f} }
func String(s string) Value     { return Value{kind: KindString, s: s} }
func List(items ...Value) Value { return Value{kind: KindList, items: items} }
func Map(entries ...Entry) Value {
	return Value{kind: KindMap, entries: entries}
}

// Pair builds a map entry with a string key.
func Pair(key string, v Value) Entry {
	return Entry{Key: String(key), Value: v}
}

// IntPair builds a map entry with an integer key.
func IntPair(key int64, v Value) Entry {
	return Entry{Key: Int(key), Value: v}
}

// Strings builds a list of string values.
func Strings(ss ...string) Value {
	items := make([]Value, len(ss))
	for i, s := range ss {
		items[i] = String(s)
	}
	return List(items...)
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Truthy follows the loose truthiness Gateways use for liveness replies.
func (v Value) Truthy() bool {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i != 0
	case KindFloat:
		return v.f != 0
	case KindString:
		return v.s != "" && v.s != "0"
	case KindList:
		return len(v.items) > 0
	case KindMap:
		return len(v.entries) > 0
	}
	return false
}

func (v Value) AsBool() (bool, bool) {
	if v.kind != KindBool {
		return false, false
	}
	return v.b, true
}

// AsInt converts ints, integral floats, bools and numeric strings.
func (v Value) AsInt() (int64, bool) {
	switch v.kind {
	case KindInt:
		return v.i, true
	case KindFloat:
		if v.f != math.Trunc(v.f) || math.IsInf(v.f, 0) || math.IsNaN(v.f) {
			return 0, false
		}
		return int64(v.f), true
	case KindBool:
		if v.b {
			return 1, true
		}
		return 0, true
	case KindString:
		i, err := strconv.ParseInt(v.s, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindString:
		f, err := strconv.ParseFloat(v.s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// AsString returns strings as-is and the decimal form of numbers, which is how map keys are compared.
func (v Value) AsString() (string, bool) {
	switch v.kind {
	case KindString:
		return v.s, true
	case KindInt:
		return strconv.FormatInt(v.i, 10), true
	case KindFloat:
		return strconv.FormatFloat(v.f, 'g', -1, 64), true
	}
	return "", false
}

// Len is the number of items of a list or entries of a map, 0 otherwise.
func (v Value) Len() int {
	switch v.kind {
	case KindList:
		return len(v.items)
	case KindMap:
		return len(v.entries)
	}
	return 0
}

// Items returns list items, or map values in order.
func (v Value) Items() []Value {
	switch v.kind {
	case KindList:
		return v.items
	case KindMap:
		items := make([]Value, len(v.entries))
		for i, e := range v.entries {
			items[i] = e.Value
		}
		return items
	}
	return nil
}

// Entries returns map entries, or list items keyed by index.
func (v Value) Entries() []Entry {
	switch v.kind {
	case KindMap:
		return v.entries
	case KindList:
		entries := make([]Entry, len(v.items))
		for i, item := range v.items {
			entries[i] = IntPair(int64(i), item)
		}
		return entries
	}
	return nil
}

// Get looks a key up in a map (or an index in a list) by its string form.
func (v Value) Get(key string) (Value, bool) {
	for _, e := range v.Entries() {
		if k, ok := e.Key.AsString(); ok && k == key {
			return e.Value, true
		}
	}
	return Null(), false
}

// StringItems collects the string form of every item, skipping items that have none.
func (v Value) StringItems() []string {
	items := v.Items()
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.AsString(); ok {
			out = append(out, s)
		}
	}
	return out
}

func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindFloat:
		return v.f == o.f || (math.IsNaN(v.f) && math.IsNaN(o.f))
	case KindString:
		return v.s == o.s
	case KindList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.entries) != len(o.entries) {
			return false
		}
		for i := range v.entries {
			if !v.entries[i].Key.Equal(o.entries[i].Key) || !v.entries[i].Value.Equal(o.entries[i].Value) {
				return false
			}
		}
		return true
	}
	return false
}

// IsContainer reports whether v is a list or a map, the only shapes a session can take.
func (v Value) IsContainer() bool {
	return v.kind == KindList || v.kind == KindMap
}

// ReplaceRecursive merges patch into base: keys present in both are replaced, unless both sides
// hold containers, in which case they are merged the same way. Keys only in base keep their order,
// new keys are appended.
func ReplaceRecursive(base, patch Value) Value {
	if !base.IsContainer() || !patch.IsContainer() {
		return patch
	}
	merged := make([]Entry, 0, base.Len()+patch.Len())
	merged = append(merged, base.Entries()...)
	for _, pe := range patch.Entries() {
		pk, _ := pe.Key.AsString()
		replaced := false
		for i, me := range merged {
			if mk, _ := me.Key.AsString(); mk == pk {
				merged[i].Value = ReplaceRecursive(me.Value, pe.Value)
				replaced = true
				break
			}
		}
		if !replaced {
			merged = append(merged, pe)
		}
	}
	return Map(merged...)
}
