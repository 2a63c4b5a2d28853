package detector

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/entity-harvester/internal/fetcher"
)

func page(status int, body string) fetcher.Response {
	return fetcher.Response{URL: "https://news.example.com/search", StatusCode: status, Body: []byte(body)}
}

func TestHeuristic_NeedsRender_EmptyBody(t *testing.T) {
	t.Parallel()

	require.True(t, NewHeuristic(0).NeedsRender(page(http.StatusOK, "  \n")))
}

func TestHeuristic_NeedsRender_MountPoint(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.True(t, h.NeedsRender(page(http.StatusOK, `<html><body><div id="__next"></div></body></html>`)))
	require.True(t, h.NeedsRender(page(http.StatusOK, `<body><div data-reactroot>Loading</div></body>`)))
}

func TestHeuristic_NeedsRender_ScriptDensity(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	body := `<html><body><p>t</p><script>` + strings.Repeat("var a=1;", 20) + `</script></body></html>`
	require.True(t, h.NeedsRender(page(http.StatusOK, body)))
}

func TestHeuristic_NeedsRender_ServerRenderedContent(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(40)
	body := `<html><body><div id="root"><h3>RiverChain wins harbour contract worth HK$2bn</h3>` +
		`<p>The award was confirmed on Friday.</p></div><script>hydrate()</script></body></html>`
	require.False(t, h.NeedsRender(page(http.StatusOK, body)))
}

func TestHeuristic_NeedsRender_SkipsNon200AndRendered(t *testing.T) {
	t.Parallel()

	h := NewHeuristic(100)
	require.False(t, h.NeedsRender(page(http.StatusNotFound, "")))

	rendered := page(http.StatusOK, `<div id="app"></div>`)
	rendered.Rendered = true
	require.False(t, h.NeedsRender(rendered))
}
