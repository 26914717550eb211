package rowjoin

import "fmt"

type cardinality int

const (
	cardinalityOne cardinality = iota
	cardinalityMany
)

type side struct {
	alias     string
	property  string
	matchOn   string
	fragments []Fragment
}

// Mapper attaches the fragments of one alias onto the fragments of another.
type Mapper struct {
	result *Result
	source side
	dest   side
}

// Into designates the alias receiving the attached values and the property
// they are stored under.
func (m *Mapper) Into(alias, property string) *Mapper {
	m.dest = side{
		alias:     alias,
		property:  property,
		fragments: m.result.Get(alias),
	}
	return m
}

// On joins on key against the id column of the other side.
func (m *Mapper) On(key string) error {
	return m.OnKeys(key, IDColumn)
}

// OnKeys joins on key against otherKey. The side that carries key decides
// the cardinality: on the source it groups sources into a slice per
// destination ("many"), on the destination it attaches a single source
// ("one").
func (m *Mapper) OnKeys(key, otherKey string) error {
	var kind cardinality
	switch {
	case hasColumn(m.source.fragments, key):
		m.source.matchOn = key
		m.dest.matchOn = otherKey
		kind = cardinalityMany
	case hasColumn(m.dest.fragments, key):
		m.source.matchOn = otherKey
		m.dest.matchOn = key
		kind = cardinalityOne
	case len(m.source.fragments) > 0 && len(m.dest.fragments) > 0:
		return fmt.Errorf("rowjoin: column %q found in neither %q nor %q", key, m.source.alias, m.dest.alias)
	default:
		// one side returned no rows, nothing to attach
		return nil
	}

	if kind == cardinalityOne {
		m.attachOne()
	} else {
		m.attachMany()
	}
	return nil
}

func (m *Mapper) attachOne() {
	index := make(map[string]Fragment, len(m.source.fragments))
	for _, f := range m.source.fragments {
		if key, ok := keyOf(f[m.source.matchOn]); ok {
			index[key] = f
		}
	}

	for _, f := range m.dest.fragments {
		var match Fragment
		if key, ok := keyOf(f[m.dest.matchOn]); ok {
			match = index[key]
		}
		if match == nil {
			f[m.dest.property] = nil
			continue
		}
		f[m.dest.property] = match
	}
}

func (m *Mapper) attachMany() {
	groups := make(map[string][]Fragment)
	for _, f := range m.source.fragments {
		key, ok := keyOf(f[m.source.matchOn])
		if !ok {
			continue
		}
		groups[key] = append(groups[key], f)
	}

	for _, f := range m.dest.fragments {
		group := []Fragment{}
		if key, ok := keyOf(f[m.dest.matchOn]); ok && groups[key] != nil {
			group = groups[key]
		}
		f[m.dest.property] = group
	}
}

func hasColumn(fragments []Fragment, column string) bool {
	if len(fragments) == 0 {
		return false
	}
	_, ok := fragments[0][column]
	return ok
}
