package harvesters

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/entity"
)

func TestBuiltinCatalog(t *testing.T) {
	t.Parallel()

	cat, err := Builtin()
	require.NoError(t, err)

	for _, id := range []string{
		"google_news", "bing_news", "hk_news", "construction_news", "sec_edgar",
		"hk_judiciary", "hk_companies_registry", "intl_tenders",
		"construction_qualifications", "environmental_compliance", "linkedin_public",
	} {
		src, ok := cat.Lookup(id)
		require.True(t, ok, id)
		assert.NotEmpty(t, src.Pages, id)
	}

	google, _ := cat.Lookup("google_news")
	assert.Equal(t, entity.CategoryNews, google.Category)
	assert.True(t, google.Pages[0].Render)

	bing, _ := cat.Lookup("bing_news")
	require.Len(t, bing.Pages[0].Selectors, 3)
	assert.Equal(t, bing.Pages[0].Selectors[0].Fields, bing.Pages[0].Selectors[1].Fields)
}

func TestQueryAndAddress(t *testing.T) {
	t.Parallel()

	src := Source{QuerySuffix: "news"}
	q := src.Query("  RiverChain   Ltd. ")
	assert.Equal(t, "RiverChain Ltd. news", q)

	page := Page{URL: "https://news.example.com/search?q={query}"}
	assert.Equal(t, "https://news.example.com/search?q=RiverChain+Ltd.+news", page.Address(q))

	pathPage := Page{URL: "https://news.example.com/search/{query_path}"}
	assert.Equal(t, "https://news.example.com/search/RiverChain%20Ltd.%20news", pathPage.Address(q))
}

func TestParseCatalogRejectsInvalidSources(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"empty":        ``,
		"unknown key":  "sources:\n  - id: a\n    colour: red\n",
		"raw category": "sources:\n  - id: a\n    category: raw\n    items_field: x\n    pages:\n      - site: s\n        url: https://a.example\n",
		"no pages":     "sources:\n  - id: a\n    category: news\n    items_field: x\n",
		"bad url":      "sources:\n  - id: a\n    category: news\n    items_field: x\n    pages:\n      - site: s\n        url: ftp://a.example\n",
		"duplicate": "sources:\n" +
			"  - {id: a, category: news, items_field: x, pages: [{site: s, url: 'https://a.example'}]}\n" +
			"  - {id: a, category: news, items_field: x, pages: [{site: s, url: 'https://a.example'}]}\n",
		"bad selector": "sources:\n" +
			"  - id: a\n    category: news\n    items_field: x\n    pages:\n" +
			"      - site: s\n        url: https://a.example\n        selectors:\n" +
			"          - name: set\n            fields: [{name: title, selector: '::text'}]\n",
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseCatalog([]byte(data))
			require.Error(t, err)
		})
	}
}

func TestLoadCatalogFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := `sources:
  - id: trade_press
    name: Trade Press
    category: industry
    enabled: true
    items_field: articles
    pages:
      - site: press
        url: "https://press.example.com/search?q={query}"
        selectors:
          - name: cards
            item: div.card
            fields:
              - {name: title, selector: h3}
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cat, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, cat.Sources, 1)
	assert.Equal(t, "trade_press", cat.Sources[0].ID)

	builtin, err := LoadCatalog("")
	require.NoError(t, err)
	assert.Greater(t, len(builtin.Sources), 1)

	_, err = LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
