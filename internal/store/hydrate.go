package store

import (
	"fmt"
	"strings"

	"github.com/go-viper/mapstructure/v2"

	"mailer/internal/rowjoin"
	"mailer/pkg/models"
)

// settingsRelations maps each settings alias of the provider join onto the
// provider property it is attached under.
var settingsRelations = []struct {
	alias    string
	property string
}{
	{"smtp", "smtp"},
	{"mg", "mailgun"},
	{"sib", "sendinblue"},
}

// splitRow turns a flat row keyed "alias.column" into per-alias fragments.
// Byte slices are converted to strings.
func splitRow(flat map[string]any) rowjoin.Row {
	row := make(rowjoin.Row)
	for key, value := range flat {
		alias, column, ok := strings.Cut(key, ".")
		if !ok {
			continue
		}
		fragment, exists := row[alias]
		if !exists {
			fragment = make(rowjoin.Fragment)
			row[alias] = fragment
		}
		if b, isBytes := value.([]byte); isBytes {
			value = string(b)
		}
		fragment[column] = value
	}
	return row
}

// hydrateProviders assembles providers from the rows of the provider join,
// attaching each settings fragment to its provider.
func hydrateProviders(rows []rowjoin.Row) ([]*models.Provider, error) {
	result := rowjoin.NewResult(rows)
	if !result.HasResults() {
		return nil, nil
	}

	for _, rel := range settingsRelations {
		if err := result.Put(rel.alias).Into("t", rel.property).On("provider_id"); err != nil {
			return nil, fmt.Errorf("failed to attach %s settings: %w", rel.alias, err)
		}
	}

	fragments := result.Get("t")
	providers := make([]*models.Provider, 0, len(fragments))
	for _, f := range fragments {
		// a provider has at most one settings row per table
		for _, rel := range settingsRelations {
			if list, ok := f[rel.property].([]rowjoin.Fragment); ok {
				if len(list) > 0 {
					f[rel.property] = list[0]
				} else {
					f[rel.property] = nil
				}
			}
		}

		p, err := decodeProvider(f)
		if err != nil {
			return nil, err
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func decodeProvider(f rowjoin.Fragment) (*models.Provider, error) {
	var p models.Provider
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "db",
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(map[string]any(f)); err != nil {
		return nil, fmt.Errorf("failed to decode provider %v: %w", f.ID(), err)
	}
	return &p, nil
}
