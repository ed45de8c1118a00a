package parser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"NoteSalesTracker/internal/ports"
)

const (
	// DefaultSelector marks the "purchased within the last 24 hours" balloon.
	DefaultSelector = ".m-purchasedWithinLast24HoursBalloon"
	defaultAgent    = "NoteSalesTracker/1.0"
)

// balloonPhrases are matched when the page ships the balloon text without its class.
var balloonPhrases = []string{"過去24時間", "買われています"}

// PurchaseChecker fetches an article page and looks for the 24h purchase balloon.
type PurchaseChecker struct {
	client    *http.Client
	selector  string
	userAgent string
}

var _ ports.PurchaseChecker = (*PurchaseChecker)(nil)

// NewPurchaseChecker wires an HTTP client; empty selector and agent take defaults.
func NewPurchaseChecker(client *http.Client, selector, userAgent string) *PurchaseChecker {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if selector == "" {
		selector = DefaultSelector
	}
	if userAgent == "" {
		userAgent = defaultAgent
	}
	return &PurchaseChecker{client: client, selector: selector, userAgent: userAgent}
}

// CheckPurchased reports whether the page currently shows the balloon.
func (c *PurchaseChecker) CheckPurchased(ctx context.Context, pageURL string) (bool, error) {
	doc, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return false, err
	}
	return HasPurchaseBalloon(doc, c.selector), nil
}

// HasPurchaseBalloon inspects a parsed page.
func HasPurchaseBalloon(doc *goquery.Document, selector string) bool {
	if doc.Find(selector).Length() > 0 {
		return true
	}

	found := false
	doc.Find("[class*='purchased'], [class*='Purchased']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.Join(strings.Fields(s.Text()), "")
		for _, phrase := range balloonPhrases {
			if !strings.Contains(text, phrase) {
				return true
			}
		}
		found = true
		return false
	})
	return found
}

func (c *PurchaseChecker) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "ja,en;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("article page returned %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	return doc, nil
}
