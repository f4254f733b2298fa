package report

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/oncotrace/oncotrace/internal/engine"
)

const reportCSS = `
body{font-family:Georgia,serif;color:#1c1917;line-height:1.45;}
h1{font-size:1.5rem;border-bottom:2px solid #0e7490;padding-bottom:0.3rem;}
h2{font-size:1.15rem;color:#0e7490;margin-top:1.4rem;}
table{width:100%;border-collapse:collapse;font-size:0.8rem;margin:0.6rem 0;}
th,td{border:1px solid #a8a29e;padding:0.35rem 0.45rem;text-align:left;vertical-align:top;}
thead th{background:#f1f5f9;font-weight:700;}
code{background:#f5f5f4;padding:0.05rem 0.25rem;font-size:0.85em;}
.chart{margin:1rem 0;}
`

// ChromiumPDFRenderer turns a finished markdown report into a paginated
// PDF through headless Chromium.
type ChromiumPDFRenderer struct {
	chromePath string
}

func NewChromiumPDFRenderer() *ChromiumPDFRenderer {
	return &ChromiumPDFRenderer{chromePath: detectChromePath()}
}

// Render converts markdown to HTML, embeds the timeline chart, and prints
// the page to PDF.
func (r *ChromiumPDFRenderer) Render(ctx context.Context, markdown string, res *engine.Result) ([]byte, error) {
	htmlDoc, err := buildHTML(markdown, res)
	if err != nil {
		return nil, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := []chromedp.ExecAllocatorOption{
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
	}
	if r.chromePath != "" {
		opts = append(opts, chromedp.ExecPath(r.chromePath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(timeoutCtx, append(chromedp.DefaultExecAllocatorOptions[:], opts...)...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	var pdf []byte
	dataURL := "data:text/html;base64," + base64.StdEncoding.EncodeToString([]byte(htmlDoc))
	if err := chromedp.Run(taskCtx,
		chromedp.Navigate(dataURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			footer := `<div style="width:100%;text-align:center;font-size:9px;color:#666;">` +
				`Page <span class="pageNumber"></span> of <span class="totalPages"></span></div>`
			out, _, err := page.PrintToPDF().
				WithPrintBackground(true).
				WithDisplayHeaderFooter(true).
				WithHeaderTemplate(`<div></div>`).
				WithFooterTemplate(footer).
				WithPaperWidth(8.27).
				WithPaperHeight(11.69).
				WithMarginTop(0.5).
				WithMarginBottom(0.75).
				WithMarginLeft(0.45).
				WithMarginRight(0.45).
				Do(ctx)
			if err != nil {
				return err
			}
			pdf = out
			return nil
		}),
	); err != nil {
		return nil, err
	}
	return pdf, nil
}

func buildHTML(markdown string, res *engine.Result) (string, error) {
	var content strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &content); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}

	chartHTML := ""
	if res != nil {
		if series := ChartSeries(res); len(series) > 0 {
			chartHTML = "<div class='chart'><h2>Size Evolution</h2>" + SeriesSVG(series, 900, 380) + "</div>"
		}
	}

	return "<!doctype html><html><head><meta charset='utf-8'><title>Lesion Evolution Report</title>" +
		"<style>" + reportCSS +
		"html,body,*{-webkit-print-color-adjust:exact !important;print-color-adjust:exact !important;}" +
		"@media print{ @page{size:auto;margin:12mm;} }" +
		"</style></head><body>" +
		content.String() + chartHTML +
		"</body></html>", nil
}

func detectChromePath() string {
	candidates := []string{
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/usr/bin/google-chrome",
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
