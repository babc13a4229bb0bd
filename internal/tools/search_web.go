package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"cottbot/internal/logging"

	"golang.org/x/net/html"
)

const (
	coindeskPriceURL  = "https://api.coindesk.com/v1/bpi/currentprice/BTC.json"
	coingeckoPriceURL = "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"
	instantAnswerURL  = "https://api.duckduckgo.com/"
	htmlSearchURL     = "https://html.duckduckgo.com/html/"

	searchStageTimeout = 15 * time.Second
	maxSearchBody      = 1 << 20
)

var (
	dateTimeQuery = regexp.MustCompile(`(?i)\b(date|time|today)\b`)
	bitcoinQuery  = regexp.MustCompile(`(?i)\b(bitcoin|btc)\b`)
	ethereumQuery = regexp.MustCompile(`(?i)\b(ethereum|eth)\b`)
)

// WebSearch answers queries about information that changes frequently.
// Stages run in a fixed order and each one is independently fault-tolerant:
// a failing stage logs and falls through, never erroring the tool call.
type WebSearch struct {
	httpClient *http.Client
	now        func() time.Time

	// Endpoint overrides for tests.
	coindeskURL  string
	coingeckoURL string
	instantURL   string
	htmlURL      string
}

// NewWebSearch creates the search tool implementation.
func NewWebSearch() *WebSearch {
	return &WebSearch{
		httpClient:   &http.Client{Timeout: searchStageTimeout},
		now:          time.Now,
		coindeskURL:  coindeskPriceURL,
		coingeckoURL: coingeckoPriceURL,
		instantURL:   instantAnswerURL,
		htmlURL:      htmlSearchURL,
	}
}

// Tool wraps the search in a registrable definition.
func (w *WebSearch) Tool() *Tool {
	return &Tool{
		Name:        "search_web",
		Description: "Search the web for current information such as current date/time, cryptocurrency prices, news, weather, or any other information that changes frequently. Use this when you need up-to-date information that you're not certain about.",
		Execute:     w.execute,
		Schema: Schema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: `The search query. Be specific about what information you need (e.g., "current Bitcoin price USD", "today's date", "weather in New York").`,
				},
			},
		},
	}
}

func (w *WebSearch) execute(ctx context.Context, args map[string]any) (string, error) {
	query, _ := args["query"].(string)
	if query == "" {
		return "", fmt.Errorf("query is required")
	}

	logging.ToolsDebug("search_web: query=%q", query)

	// Date/time queries never need the network.
	if dateTimeQuery.MatchString(query) {
		return w.currentTimestamp(), nil
	}

	if bitcoinQuery.MatchString(query) {
		return w.bitcoinPrice(ctx), nil
	}
	if ethereumQuery.MatchString(query) {
		return w.ethereumPrice(ctx), nil
	}

	if answer, ok := w.instantAnswer(ctx, query); ok {
		return answer, nil
	}
	if summary, ok := w.knowledgeSummary(ctx, query); ok {
		return summary, nil
	}

	return fmt.Sprintf("Search completed for %q. No specific information found. Please try rephrasing your query.", query), nil
}

func (w *WebSearch) currentTimestamp() string {
	now := w.now()
	return fmt.Sprintf("Current date and time: %s (UTC: %s)",
		now.Format("Monday, January 2, 2006, 03:04 PM MST"),
		now.UTC().Format(time.RFC3339))
}

// bitcoinPrice fetches the CoinDesk BTC spot price.
func (w *WebSearch) bitcoinPrice(ctx context.Context) string {
	var payload struct {
		BPI struct {
			USD struct {
				Rate string `json:"rate"`
			} `json:"USD"`
		} `json:"bpi"`
	}
	if err := w.getJSON(ctx, w.coindeskURL, &payload); err != nil {
		logging.ToolsError("search_web: bitcoin lookup failed: %v", err)
		return "Unable to fetch Bitcoin price at this time."
	}

	rate := strings.ReplaceAll(payload.BPI.USD.Rate, ",", "")
	price, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		logging.ToolsError("search_web: bitcoin rate unparseable: %q", payload.BPI.USD.Rate)
		return "Unable to fetch Bitcoin price at this time."
	}
	return fmt.Sprintf("Bitcoin (BTC) price: $%s USD", formatUSD(price))
}

// ethereumPrice fetches the CoinGecko ETH spot price.
func (w *WebSearch) ethereumPrice(ctx context.Context) string {
	var payload struct {
		Ethereum struct {
			USD float64 `json:"usd"`
		} `json:"ethereum"`
	}
	if err := w.getJSON(ctx, w.coingeckoURL, &payload); err != nil {
		logging.ToolsError("search_web: ethereum lookup failed: %v", err)
		return "Unable to fetch Ethereum price at this time."
	}
	return fmt.Sprintf("Ethereum (ETH) price: $%s USD", formatUSD(payload.Ethereum.USD))
}

// instantAnswer asks the DuckDuckGo Instant Answer API. The second return
// is false when the stage produced nothing usable.
func (w *WebSearch) instantAnswer(ctx context.Context, query string) (string, bool) {
	u := w.instantURL + "?q=" + url.QueryEscape(query) + "&format=json&no_html=1&skip_disambig=1"

	var payload struct {
		AbstractText  string `json:"AbstractText"`
		Answer        string `json:"Answer"`
		RelatedTopics []struct {
			Text string `json:"Text"`
		} `json:"RelatedTopics"`
	}
	if err := w.getJSON(ctx, u, &payload); err != nil {
		logging.ToolsError("search_web: instant answer failed: %v", err)
		return "", false
	}

	if payload.AbstractText != "" {
		return payload.AbstractText, true
	}
	if payload.Answer != "" {
		return payload.Answer, true
	}
	if len(payload.RelatedTopics) > 0 && payload.RelatedTopics[0].Text != "" {
		return payload.RelatedTopics[0].Text, true
	}
	return "", false
}

// knowledgeSummary scrapes the top DuckDuckGo HTML result as a fallback
// when the Instant Answer API has nothing.
func (w *WebSearch) knowledgeSummary(ctx context.Context, query string) (string, bool) {
	u := w.htmlURL + "?q=" + url.QueryEscape(query)

	ctx, cancel := context.WithTimeout(ctx, searchStageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return "", false
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		logging.ToolsError("search_web: html fallback failed: %v", err)
		return "", false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		logging.ToolsError("search_web: html fallback status %d", resp.StatusCode)
		return "", false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return "", false
	}

	title, snippet := parseTopResult(string(body))
	if title == "" {
		return "", false
	}
	if snippet == "" {
		return title, true
	}
	return title + ": " + snippet, true
}

// getJSON fetches a URL and decodes the JSON body into out.
func (w *WebSearch) getJSON(ctx context.Context, u string, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, searchStageTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSearchBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

// parseTopResult extracts the first result title and snippet from the
// DuckDuckGo HTML search page.
func parseTopResult(htmlContent string) (title, snippet string) {
	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		return "", ""
	}

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if title != "" && snippet != "" {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "class" {
					continue
				}
				if title == "" && strings.Contains(attr.Val, "result__a") {
					title = strings.TrimSpace(textContent(n))
				} else if snippet == "" && strings.Contains(attr.Val, "result__snippet") {
					snippet = strings.TrimSpace(textContent(n))
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return title, snippet
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

// formatUSD renders a price with thousands separators and two decimals.
func formatUSD(v float64) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	dot := strings.IndexByte(s, '.')
	intPart, frac := s[:dot], s[dot:]

	neg := strings.HasPrefix(intPart, "-")
	if neg {
		intPart = intPart[1:]
	}

	var sb strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(r)
	}
	out := sb.String() + frac
	if neg {
		out = "-" + out
	}
	return out
}
