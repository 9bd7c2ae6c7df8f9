package parser

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/Houeta/price-flow/internal/metrics"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const skuPrefix = "J_"

var errUnexpectedPayload = errors.New("unexpected price payload")

// fetchPrices requests the prices of all ids at once. Ids missing from the
// response, or with an unparsable price, are absent from the returned map.
func (p *Parser) fetchPrices(ctx context.Context, ids []string) (map[string]decimal.NullDecimal, error) {
	const opn = "parser.fetchPrices"

	reqURL, err := url.Parse(p.opts.PriceURL)
	if err != nil {
		return nil, &FetchError{Op: opn, Kind: KindConnection, Err: fmt.Errorf("failed to parse price URL %s: %w", p.opts.PriceURL, err)}
	}

	skuIDs := make([]string, len(ids))
	for i, id := range ids {
		skuIDs[i] = skuPrefix + id
	}
	query := reqURL.Query()
	query.Set("skuIds", strings.Join(skuIDs, ","))
	reqURL.RawQuery = query.Encode()

	body, _, err := p.get(ctx, metrics.EndpointPrice, reqURL.String(), p.opts.ItemURL)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		return nil, &FetchError{Op: opn, Kind: KindParse, Err: errUnexpectedPayload}
	}
	result := gjson.ParseBytes(body)
	if !result.IsArray() {
		return nil, &FetchError{Op: opn, Kind: KindParse, Err: fmt.Errorf("%w: not an array", errUnexpectedPayload)}
	}

	prices := make(map[string]decimal.NullDecimal, len(ids))
	result.ForEach(func(_, item gjson.Result) bool {
		id := strings.TrimPrefix(item.Get("id").String(), skuPrefix)
		raw := item.Get("p")
		if id == "" || !raw.Exists() {
			return true
		}

		price, parseErr := decimal.NewFromString(strings.TrimSpace(raw.String()))
		if parseErr != nil {
			p.log.WarnContext(ctx, "Unparsable price", "op", opn, "product_id", id, "price", raw.String())
			return true
		}
		prices[id] = decimal.NewNullDecimal(price)

		return true
	})

	for _, id := range ids {
		if _, ok := prices[id]; !ok {
			p.log.WarnContext(ctx, "No price", "op", opn, "product_id", id)
		}
	}

	return prices, nil
}
