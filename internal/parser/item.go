package parser

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Houeta/price-flow/internal/metrics"
	"github.com/Houeta/price-flow/internal/models"
	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
	"golang.org/x/text/unicode/norm"
)

const (
	shopSelector         = ".J-hove-wrap .name"
	nameSelector         = ".sku-name"
	availabilitySelector = ".itemover-tip"

	pageReferer = "https://mall.jd.com/"
)

func (p *Parser) fetchItem(ctx context.Context, id string) (*models.ProductSnapshot, error) {
	href := p.opts.ItemURL + id + ".html"

	body, contentType, err := p.get(ctx, metrics.EndpointItem, href, pageReferer)
	if err != nil {
		return nil, err
	}

	return p.parseItemPage(ctx, id, href, body, contentType)
}

// parseItemPage decodes the page using its declared charset and extracts the metadata.
func (p *Parser) parseItemPage(
	ctx context.Context, id, href string, body []byte, contentType string,
) (*models.ProductSnapshot, error) {
	const opn = "parser.parseItemPage"

	reader, err := charset.NewReader(bytes.NewReader(body), contentType)
	if err != nil {
		return nil, &FetchError{Op: opn, Kind: KindParse, Err: fmt.Errorf("failed to decode page: %w", err)}
	}

	doc, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, &FetchError{Op: opn, Kind: KindParse, Err: fmt.Errorf("data cannot be parsed as HTML: %w", err)}
	}

	snapshot := &models.ProductSnapshot{
		ProductID:        id,
		CapturedAt:       time.Now().UTC(),
		Href:             href,
		ShopName:         textOf(doc.Find(shopSelector)),
		ProductName:      textOf(doc.Find(nameSelector)),
		AvailabilityNote: textOf(doc.Find(availabilitySelector)),
	}

	if snapshot.ShopName == nil {
		p.log.WarnContext(ctx, "No shop name", "op", opn, "product_id", id)
	}
	if snapshot.ProductName == nil {
		p.log.WarnContext(ctx, "No product name", "op", opn, "product_id", id)
	}
	if snapshot.AvailabilityNote != nil {
		p.log.InfoContext(ctx, "Product unavailable", "op", opn, "product_id", id, "note", *snapshot.AvailabilityNote)
	}

	p.log.DebugContext(ctx, "Parsed item page", "op", opn, "product_id", id)

	return snapshot, nil
}

// textOf returns the normalized text of the first match, or nil when there is none.
func textOf(sel *goquery.Selection) *string {
	if sel.Length() == 0 {
		return nil
	}

	text := normalize(sel.First().Text())
	if text == "" {
		return nil
	}

	return &text
}

// normalize folds full-width forms and collapses whitespace.
func normalize(s string) string {
	return strings.Join(strings.Fields(norm.NFKC.String(s)), " ")
}
