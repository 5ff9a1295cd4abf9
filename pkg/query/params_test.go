package query

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bookDefinition() Definition {
	return Definition{
		Filters: map[string]FilterField{
			"title":            {Column: "b.title", Lookups: []Lookup{LookupExact, LookupIContains}},
			"author":           Exact("b.author_id"),
			"publication_year": {Column: "b.publication_year", Lookups: []Lookup{LookupExact, LookupGTE, LookupLTE}},
		},
		SearchColumns: []string{"b.title", "a.name"},
		OrderFields: map[string]string{
			"title":            "b.title",
			"publication_year": "b.publication_year",
			"author":           "a.name",
		},
		DefaultOrder: []string{"-publication_year", "title"},
		PageSize:     DefaultPageSize,
	}
}

func parseQuery(t *testing.T, rawQuery string) url.Values {
	t.Helper()

	values, err := url.ParseQuery(rawQuery)
	require.NoError(t, err)
	return values
}

func TestParseParamsFilters(t *testing.T) {
	def := bookDefinition()

	p, err := ParseParams(def, parseQuery(t, "title=Dune&publication_year__gte=1960&publication_year__lte=1970"))
	require.NoError(t, err)

	// Keys are processed in sorted order
	require.Len(t, p.Filters, 3)
	assert.Equal(t, Filter{Column: "b.publication_year", Lookup: LookupGTE, Value: "1960"}, p.Filters[0])
	assert.Equal(t, Filter{Column: "b.publication_year", Lookup: LookupLTE, Value: "1970"}, p.Filters[1])
	assert.Equal(t, Filter{Column: "b.title", Lookup: LookupExact, Value: "Dune"}, p.Filters[2])
	assert.True(t, p.Filtered())
}

func TestParseParamsIgnoresUnknownParams(t *testing.T) {
	def := bookDefinition()

	p, err := ParseParams(def, parseQuery(t, "genre=scifi&format=json&title=Dune"))
	require.NoError(t, err)

	require.Len(t, p.Filters, 1)
	assert.Equal(t, "b.title", p.Filters[0].Column)
}

func TestParseParamsIgnoresDisallowedLookup(t *testing.T) {
	def := bookDefinition()

	// author only accepts equality
	p, err := ParseParams(def, parseQuery(t, "author__icontains=herbert"))
	require.NoError(t, err)
	assert.Empty(t, p.Filters)

	p, err = ParseParams(def, parseQuery(t, "author=3"))
	require.NoError(t, err)
	require.Len(t, p.Filters, 1)
	assert.Equal(t, Filter{Column: "b.author_id", Lookup: LookupExact, Value: "3"}, p.Filters[0])
}

func TestParseParamsExplicitExactSuffix(t *testing.T) {
	def := bookDefinition()

	p, err := ParseParams(def, parseQuery(t, "title__exact=Dune"))
	require.NoError(t, err)

	require.Len(t, p.Filters, 1)
	assert.Equal(t, Filter{Column: "b.title", Lookup: LookupExact, Value: "Dune"}, p.Filters[0])
}

func TestParseParamsIContainsLookup(t *testing.T) {
	def := bookDefinition()

	p, err := ParseParams(def, parseQuery(t, "title__icontains=dune"))
	require.NoError(t, err)

	require.Len(t, p.Filters, 1)
	assert.Equal(t, Filter{Column: "b.title", Lookup: LookupIContains, Value: "dune"}, p.Filters[0])
}

func TestParseParamsSkipsEmptyValues(t *testing.T) {
	def := bookDefinition()

	p, err := ParseParams(def, parseQuery(t, "title=&publication_year__gte=1960"))
	require.NoError(t, err)

	require.Len(t, p.Filters, 1)
	assert.Equal(t, LookupGTE, p.Filters[0].Lookup)
}

func TestParseParamsSearch(t *testing.T) {
	def := bookDefinition()

	p, err := ParseParams(def, parseQuery(t, "search=%20%20dune%20%20"))
	require.NoError(t, err)
	assert.Equal(t, "dune", p.Search)
	assert.True(t, p.Searched())

	p, err = ParseParams(def, parseQuery(t, "search=%20%20"))
	require.NoError(t, err)
	assert.Equal(t, "", p.Search)
	assert.False(t, p.Searched())
}

func TestParseParamsOrdering(t *testing.T) {
	def := bookDefinition()

	tests := []struct {
		name     string
		rawQuery string
		want     []OrderTerm
	}{
		{
			name:     "multiple terms with descending marker",
			rawQuery: "ordering=-publication_year,title",
			want: []OrderTerm{
				{Column: "b.publication_year", Desc: true},
				{Column: "b.title", Desc: false},
			},
		},
		{
			name:     "related ordering key",
			rawQuery: "ordering=author",
			want: []OrderTerm{
				{Column: "a.name", Desc: false},
			},
		},
		{
			name:     "invalid terms are dropped",
			rawQuery: "ordering=hacker,-title",
			want: []OrderTerm{
				{Column: "b.title", Desc: true},
			},
		},
		{
			name:     "all invalid falls back to default",
			rawQuery: "ordering=hacker",
			want: []OrderTerm{
				{Column: "b.publication_year", Desc: true},
				{Column: "b.title", Desc: false},
			},
		},
		{
			name:     "absent falls back to default",
			rawQuery: "",
			want: []OrderTerm{
				{Column: "b.publication_year", Desc: true},
				{Column: "b.title", Desc: false},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParams(def, parseQuery(t, tt.rawQuery))
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Order)
		})
	}
}

func TestParseParamsDefaultOrderUnexposedColumn(t *testing.T) {
	def := Definition{
		OrderFields:  map[string]string{"title": "b.title"},
		DefaultOrder: []string{"-created_at", "title"},
	}

	p, err := ParseParams(def, url.Values{})
	require.NoError(t, err)

	assert.Equal(t, []OrderTerm{
		{Column: "created_at", Desc: true},
		{Column: "b.title", Desc: false},
	}, p.Order)
}

func TestParseParamsPage(t *testing.T) {
	def := bookDefinition()

	tests := []struct {
		name     string
		rawQuery string
		wantPage int
		wantLast bool
		wantErr  bool
	}{
		{name: "absent defaults to one", rawQuery: "", wantPage: 1},
		{name: "explicit page", rawQuery: "page=3", wantPage: 3},
		{name: "last page by name", rawQuery: "page=last", wantPage: 1, wantLast: true},
		{name: "zero is invalid", rawQuery: "page=0", wantErr: true},
		{name: "negative is invalid", rawQuery: "page=-2", wantErr: true},
		{name: "non-numeric is invalid", rawQuery: "page=abc", wantErr: true},
		{name: "fractional is invalid", rawQuery: "page=1.5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ParseParams(def, parseQuery(t, tt.rawQuery))
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidPage)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantPage, p.Page)
			assert.Equal(t, tt.wantLast, p.PageLast)
		})
	}
}

func TestParamsFlagsZeroValue(t *testing.T) {
	var p Params
	assert.False(t, p.Filtered())
	assert.False(t, p.Searched())
}
