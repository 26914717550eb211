// Package rowjoin reassembles the flat rows of a multi-table join into an
// object graph. Each row carries one fragment per table alias; fragments are
// deduplicated by their id column and can then be attached onto each other
// with Put/Into/On.
package rowjoin

import "fmt"

// IDColumn is the primary key column every fragment is deduplicated by.
const IDColumn = "id"

// Fragment is the slice of a joined row that belongs to a single alias.
type Fragment map[string]any

// Row is one joined row, keyed by table alias.
type Row map[string]Fragment

// ID returns the fragment id, or nil when the fragment is an outer-join miss.
func (f Fragment) ID() any {
	if f == nil {
		return nil
	}
	return f[IDColumn]
}

// Result holds the deduplicated fragments of a joined query.
type Result struct {
	rows  int
	order map[string][]string
	data  map[string]map[string]Fragment
}

// NewResult groups rows by alias and deduplicates each alias by id, keeping
// first-seen order. Fragments with a null or absent id are skipped.
func NewResult(rows []Row) *Result {
	r := &Result{
		rows:  len(rows),
		order: make(map[string][]string),
		data:  make(map[string]map[string]Fragment),
	}
	for _, row := range rows {
		for alias, fragment := range row {
			r.add(alias, fragment)
		}
	}
	return r
}

func (r *Result) add(alias string, fragment Fragment) {
	collection, ok := r.data[alias]
	if !ok {
		collection = make(map[string]Fragment)
		r.data[alias] = collection
	}

	key, ok := keyOf(fragment.ID())
	if !ok {
		return
	}
	if _, exists := collection[key]; exists {
		return
	}
	collection[key] = fragment
	r.order[alias] = append(r.order[alias], key)
}

// HasResults reports whether the query returned any rows.
func (r *Result) HasResults() bool {
	return r.rows > 0
}

// Aliases returns the aliases seen in the result.
func (r *Result) Aliases() []string {
	aliases := make([]string, 0, len(r.data))
	for alias := range r.data {
		aliases = append(aliases, alias)
	}
	return aliases
}

// Get returns the fragments of an alias in first-seen order.
func (r *Result) Get(alias string) []Fragment {
	keys := r.order[alias]
	fragments := make([]Fragment, 0, len(keys))
	for _, key := range keys {
		fragments = append(fragments, r.data[alias][key])
	}
	return fragments
}

// Find returns the fragment of an alias with the given id, or nil.
func (r *Result) Find(alias string, id any) Fragment {
	key, ok := keyOf(id)
	if !ok {
		return nil
	}
	return r.data[alias][key]
}

// Put starts a relationship with alias as the source of the attached values.
func (r *Result) Put(alias string) *Mapper {
	return &Mapper{
		result: r,
		source: side{alias: alias, fragments: r.Get(alias)},
	}
}

// keyOf normalises an id so int, int64 and string ids compare the same way
// no matter which driver produced them.
func keyOf(v any) (string, bool) {
	switch id := v.(type) {
	case nil:
		return "", false
	case string:
		if id == "" {
			return "", false
		}
		return id, true
	case []byte:
		if len(id) == 0 {
			return "", false
		}
		return string(id), true
	default:
		return fmt.Sprint(id), true
	}
}
