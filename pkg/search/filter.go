// Package search provides query-side helpers for collections: metadata
// filters applied to search hits and an LRU cache for repeated queries.
package search

// Filter decides whether a vector's metadata fields match. A nil field
// map is valid and means the vector carries no metadata.
type Filter interface {
	Match(fields map[string]string) bool
}

// FilterFunc adapts a plain function to the Filter interface.
type FilterFunc func(fields map[string]string) bool

func (f FilterFunc) Match(fields map[string]string) bool { return f(fields) }

type eqFilter struct {
	field string
	value string
}

func (f eqFilter) Match(fields map[string]string) bool {
	v, ok := fields[f.field]
	return ok && v == f.value
}

// Eq matches vectors whose field equals value exactly.
func Eq(field, value string) Filter { return eqFilter{field, value} }

// Ne matches vectors whose field is present and differs from value.
func Ne(field, value string) Filter {
	return FilterFunc(func(fields map[string]string) bool {
		v, ok := fields[field]
		return ok && v != value
	})
}

type inFilter struct {
	field  string
	values []string
}

func (f inFilter) Match(fields map[string]string) bool {
	v, ok := fields[f.field]
	if !ok {
		return false
	}
	for _, want := range f.values {
		if v == want {
			return true
		}
	}
	return false
}

// In matches vectors whose field equals any of the given values.
func In(field string, values ...string) Filter { return inFilter{field, values} }

// Exists matches vectors that carry the field at all.
func Exists(field string) Filter {
	return FilterFunc(func(fields map[string]string) bool {
		_, ok := fields[field]
		return ok
	})
}

// HasPrefix matches vectors whose field starts with prefix.
func HasPrefix(field, prefix string) Filter {
	return FilterFunc(func(fields map[string]string) bool {
		v, ok := fields[field]
		return ok && len(v) >= len(prefix) && v[:len(prefix)] == prefix
	})
}

type andFilter []Filter

func (f andFilter) Match(fields map[string]string) bool {
	for _, sub := range f {
		if !sub.Match(fields) {
			return false
		}
	}
	return true
}

// And matches when every sub-filter matches. And() matches everything.
func And(filters ...Filter) Filter { return andFilter(filters) }

type orFilter []Filter

func (f orFilter) Match(fields map[string]string) bool {
	for _, sub := range f {
		if sub.Match(fields) {
			return true
		}
	}
	return false
}

// Or matches when at least one sub-filter matches.
func Or(filters ...Filter) Filter { return orFilter(filters) }

// Not inverts a filter.
func Not(f Filter) Filter {
	return FilterFunc(func(fields map[string]string) bool {
		return !f.Match(fields)
	})
}

// MatchAll builds an equality filter over every key/value pair, the
// shape the HTTP API accepts. A nil or empty map matches everything.
func MatchAll(pairs map[string]string) Filter {
	filters := make([]Filter, 0, len(pairs))
	for k, v := range pairs {
		filters = append(filters, Eq(k, v))
	}
	return And(filters...)
}
