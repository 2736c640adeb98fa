package realtime

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

const DefaultNamespace = "public"

var (
	ErrInvalidFilter   = errors.New("invalid filter")
	ErrMissingResource = errors.New("descriptor requires a resource")
)

// Descriptor names a live feed: a resource within a namespace, optionally
// narrowed by a row filter. Events narrows delivery to one listener only and
// is not part of the channel identity.
type Descriptor struct {
	Namespace string
	Resource  string
	Filter    string
	Events    EventMask
}

// Key identifies a channel. Two descriptors with the same key share one
// transport subscription.
type Key struct {
	Namespace string
	Resource  string
	Filter    string
}

func (d Descriptor) Key() Key {
	return Key{
		Namespace: namespaceOrDefault(d.Namespace),
		Resource:  d.Resource,
		Filter:    strings.TrimSpace(d.Filter),
	}
}

func (d Descriptor) Validate() error {
	if d.Resource == "" {
		return ErrMissingResource
	}
	if _, err := ParseFilter(d.Filter); err != nil {
		return err
	}
	return nil
}

func (k Key) Topic() string {
	return "realtime:" + namespaceOrDefault(k.Namespace) + ":" + k.Resource
}

func (k Key) String() string {
	if k.Filter == "" {
		return k.Topic()
	}
	return k.Topic() + ":" + k.Filter
}

func namespaceOrDefault(ns string) string {
	if ns == "" {
		return DefaultNamespace
	}
	return ns
}

type FilterOp string

const (
	OpEq  FilterOp = "eq"
	OpNeq FilterOp = "neq"
	OpIn  FilterOp = "in"
)

// Filter is a single-column row predicate written as column=op.value, for
// example owner_id=eq.42 or kind=in.(comment,reply). The zero Filter matches
// every row.
type Filter struct {
	Column string
	Op     FilterOp
	Values []string
}

func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Filter{}, nil
	}

	column, expr, ok := strings.Cut(s, "=")
	if !ok || column == "" {
		return Filter{}, fmt.Errorf("%w: %q", ErrInvalidFilter, s)
	}
	op, value, ok := strings.Cut(expr, ".")
	if !ok {
		return Filter{}, fmt.Errorf("%w: missing operator in %q", ErrInvalidFilter, s)
	}

	f := Filter{Column: column, Op: FilterOp(op)}
	switch f.Op {
	case OpEq, OpNeq:
		f.Values = []string{value}
	case OpIn:
		if !strings.HasPrefix(value, "(") || !strings.HasSuffix(value, ")") {
			return Filter{}, fmt.Errorf("%w: in operator needs a parenthesised list in %q", ErrInvalidFilter, s)
		}
		for v := range strings.SplitSeq(value[1:len(value)-1], ",") {
			if v = strings.TrimSpace(v); v != "" {
				f.Values = append(f.Values, v)
			}
		}
		if len(f.Values) == 0 {
			return Filter{}, fmt.Errorf("%w: empty list in %q", ErrInvalidFilter, s)
		}
	default:
		return Filter{}, fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, op)
	}
	return f, nil
}

func (f Filter) IsZero() bool { return f.Column == "" }

func (f Filter) String() string {
	if f.IsZero() {
		return ""
	}
	if f.Op == OpIn {
		return f.Column + "=in.(" + strings.Join(f.Values, ",") + ")"
	}
	return f.Column + "=" + string(f.Op) + "." + f.Values[0]
}

// Match reports whether the decoded row satisfies the filter. A row without
// the filtered column never matches a non-zero filter.
func (f Filter) Match(row map[string]any) bool {
	if f.IsZero() {
		return true
	}
	raw, ok := row[f.Column]
	if !ok {
		return false
	}
	v := stringify(raw)
	switch f.Op {
	case OpEq:
		return v == f.Values[0]
	case OpNeq:
		return v != f.Values[0]
	case OpIn:
		return slices.Contains(f.Values, v)
	default:
		return false
	}
}

// MatchEvent decodes the event's row and applies the filter to it.
func (f Filter) MatchEvent(ev Event) (bool, error) {
	if f.IsZero() {
		return true, nil
	}
	var row map[string]any
	if err := ev.Decode(&row); err != nil {
		return false, err
	}
	return f.Match(row), nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
