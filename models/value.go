package models

import (
	"encoding/json"
	"fmt"
	"net/netip"
	"strconv"
	"strings"
	"time"
)

// Kind discriminates the representations a Value can take.
type Kind uint8

const (
	KindString Kind = iota
	KindNumber
	KindBool
	KindIP
	KindNetwork
	KindRelation
	KindDatetime
	KindMulti
)

// Value is the canonical typed form of an attribute value. It is a tagged
// union: exactly one of the payload fields is meaningful, selected by Kind.
// Multi-valued attributes are represented as a KindMulti value whose Elems
// hold the ordered scalar elements (duplicates allowed, insertion order
// preserved).
//
// Values are immutable by convention; engines build new ones instead of
// mutating in place.
type Value struct {
	Kind Kind

	Str  string
	Num  float64
	Bool bool
	IP   netip.Addr
	Net  netip.Prefix
	Time time.Time

	// Elems holds the elements of a KindMulti value.
	Elems []Value
}

// StringValue returns a KindString value.
func StringValue(s string) Value { return Value{Kind: KindString, Str: s} }

// NumberValue returns a KindNumber value.
func NumberValue(n float64) Value { return Value{Kind: KindNumber, Num: n} }

// BoolValue returns a KindBool value.
func BoolValue(b bool) Value { return Value{Kind: KindBool, Bool: b} }

// IPValue returns a KindIP value.
func IPValue(a netip.Addr) Value { return Value{Kind: KindIP, IP: a} }

// NetworkValue returns a KindNetwork value.
func NetworkValue(p netip.Prefix) Value { return Value{Kind: KindNetwork, Net: p} }

// RelationValue returns a KindRelation value referencing a hostname.
func RelationValue(hostname string) Value { return Value{Kind: KindRelation, Str: hostname} }

// DatetimeValue returns a KindDatetime value.
func DatetimeValue(t time.Time) Value { return Value{Kind: KindDatetime, Time: t} }

// MultiValue returns a KindMulti value over the given ordered elements.
func MultiValue(elems []Value) Value { return Value{Kind: KindMulti, Elems: elems} }

// String renders the canonical textual form of the value. This is the form
// persisted in the attribute value table; parsing it back through the
// typecast engine yields an equal Value.
func (v Value) String() string {
	switch v.Kind {
	case KindString, KindRelation:
		return v.Str
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return strconv.FormatInt(int64(v.Num), 10)
		}
		return strconv.FormatFloat(v.Num, 'g', -1, 64)
	case KindBool:
		return strconv.FormatBool(v.Bool)
	case KindIP:
		return v.IP.String()
	case KindNetwork:
		return v.Net.String()
	case KindDatetime:
		return v.Time.UTC().Format(time.RFC3339)
	case KindMulti:
		parts := make([]string, len(v.Elems))
		for i, e := range v.Elems {
			parts[i] = e.String()
		}
		return strings.Join(parts, ",")
	}
	return ""
}

// Native converts the value into plain Go data suitable for JSON encoding:
// strings, float64/int64, bool, textual IP forms and ordered slices for
// multi values.
func (v Value) Native() any {
	switch v.Kind {
	case KindString, KindRelation:
		return v.Str
	case KindNumber:
		if v.Num == float64(int64(v.Num)) {
			return int64(v.Num)
		}
		return v.Num
	case KindBool:
		return v.Bool
	case KindIP:
		return v.IP.String()
	case KindNetwork:
		return v.Net.String()
	case KindDatetime:
		return v.Time.UTC().Format(time.RFC3339)
	case KindMulti:
		out := make([]any, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = e.Native()
		}
		return out
	}
	return nil
}

// MarshalJSON encodes the value as its natural JSON form.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Native())
}

// Equal reports whether two values are equal. Multi values compare
// element-wise in order.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind {
		return false
	}
	switch v.Kind {
	case KindString, KindRelation:
		return v.Str == o.Str
	case KindNumber:
		return v.Num == o.Num
	case KindBool:
		return v.Bool == o.Bool
	case KindIP:
		return v.IP == o.IP
	case KindNetwork:
		return v.Net == o.Net
	case KindDatetime:
		return v.Time.Equal(o.Time)
	case KindMulti:
		if len(v.Elems) != len(o.Elems) {
			return false
		}
		for i := range v.Elems {
			if !v.Elems[i].Equal(o.Elems[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Compare orders two values: numeric for numbers, chronological for
// datetimes, lexicographic on the canonical text otherwise. Values of
// different kinds fall back to text comparison.
func (v Value) Compare(o Value) int {
	if v.Kind == o.Kind {
		switch v.Kind {
		case KindNumber:
			switch {
			case v.Num < o.Num:
				return -1
			case v.Num > o.Num:
				return 1
			}
			return 0
		case KindDatetime:
			return v.Time.Compare(o.Time)
		}
	}
	return strings.Compare(v.String(), o.String())
}

// GoString helps test failure output stay readable.
func (v Value) GoString() string {
	return fmt.Sprintf("Value(%s)", v.String())
}
