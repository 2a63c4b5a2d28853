// Package detector decides when a plainly fetched page is a JavaScript shell
// that must be re-fetched through the headless renderer.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/entity-harvester/internal/fetcher"
)

const (
	defaultMinText       = 200
	scriptCoveragePct    = 25
	defaultMountSelector = "#__next, #root, #app, [data-reactroot], [ng-app], [data-server-rendered]"
)

// Heuristic flags pages whose visible text is thin while script or an SPA
// mount point dominates the markup.
type Heuristic struct {
	// MinText is the visible text length under which a page counts as thin.
	MinText int
}

// NewHeuristic creates a detector. minText <= 0 selects the default.
func NewHeuristic(minText int) *Heuristic {
	if minText <= 0 {
		minText = defaultMinText
	}
	return &Heuristic{MinText: minText}
}

// NeedsRender implements fetcher.Detector.
func (h *Heuristic) NeedsRender(resp fetcher.Response) bool {
	if resp.StatusCode != http.StatusOK || resp.Rendered {
		return false
	}
	body := bytes.TrimSpace(resp.Body)
	if len(body) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return false
	}

	scripts := doc.Find("script")
	scriptBytes := 0
	scripts.Each(func(_ int, s *goquery.Selection) {
		scriptBytes += len(s.Text())
	})
	scripts.Remove()
	doc.Find("style, noscript, template").Remove()

	text := strings.Join(strings.Fields(doc.Find("body").Text()), " ")
	if len(text) >= h.MinText {
		return false
	}
	if doc.Find(defaultMountSelector).Length() > 0 {
		return true
	}
	return scriptBytes*100/len(body) >= scriptCoveragePct
}
