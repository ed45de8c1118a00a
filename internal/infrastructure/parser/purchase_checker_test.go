package parser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func TestHasPurchaseBalloon(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		html string
		want bool
	}{
		{
			name: "selector",
			html: `<div class="m-purchasedWithinLast24HoursBalloon">過去24時間以内に買われています</div>`,
			want: true,
		},
		{
			name: "renamed class with phrase",
			html: `<p class="o-purchasedBadge"> 過去24時間 で 買われています </p>`,
			want: true,
		},
		{
			name: "phrase without class",
			html: `<p>過去24時間で買われています</p>`,
			want: false,
		},
		{
			name: "absent",
			html: `<article><h1>Title</h1></article>`,
			want: false,
		},
	}

	for _, tc := range cases {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(tc.html))
		if err != nil {
			t.Fatalf("%s: new document: %v", tc.name, err)
		}
		if got := HasPurchaseBalloon(doc, DefaultSelector); got != tc.want {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCheckPurchasedFetchesPage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "test-agent" {
			t.Errorf("unexpected user agent %q", ua)
		}
		switch r.URL.Path {
		case "/n/hit":
			_, _ = w.Write([]byte(`<html><body><span class="m-purchasedWithinLast24HoursBalloon">x</span></body></html>`))
		case "/n/miss":
			_, _ = w.Write([]byte(`<html><body>nothing</body></html>`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	checker := NewPurchaseChecker(srv.Client(), "", "test-agent")
	ctx := context.Background()

	if hit, err := checker.CheckPurchased(ctx, srv.URL+"/n/hit"); err != nil || !hit {
		t.Fatalf("hit page: hit=%v err=%v", hit, err)
	}
	if hit, err := checker.CheckPurchased(ctx, srv.URL+"/n/miss"); err != nil || hit {
		t.Fatalf("miss page: hit=%v err=%v", hit, err)
	}
	if _, err := checker.CheckPurchased(ctx, srv.URL+"/n/gone"); err == nil {
		t.Fatalf("expected error for 404 page")
	}
}
