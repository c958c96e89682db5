package parser

import (
	"strings"
	"testing"
)

func sentence(word string, n int) string {
	return strings.TrimSpace(strings.Repeat(word+" ", n))
}

func TestExtractPlainText(t *testing.T) {
	t.Parallel()

	x := NewExtractor(400)
	body := sentence("plain", 100)
	if got := x.Extract("  " + body + "\n"); got != body {
		t.Fatalf("expected plain text passthrough, got %q", got)
	}
	if got := x.Extract("too short"); got != "" {
		t.Fatalf("expected short text to be rejected, got %q", got)
	}
}

func TestExtractThresholdIsStrict(t *testing.T) {
	t.Parallel()

	x := NewExtractor(10)
	if got := x.Extract("0123456789"); got != "" {
		t.Fatalf("text equal to the threshold must be rejected, got %q", got)
	}
	if got := x.Extract("0123456789a"); got != "0123456789a" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestExtractPrefersArticleBodyFromStructuredData(t *testing.T) {
	t.Parallel()

	body := sentence("body", 120)
	page := `<html><head>
<script type="application/ld+json">
{"@graph":[{"@type":"WebPage","description":"` + sentence("desc", 200) + `"},
 {"@type":"NewsArticle","nested":{"articleBody":"` + body + `"}}]}
</script>
<style>.x{color:red}</style>
</head><body><article><p>` + sentence("dom", 150) + `</p></article></body></html>`

	if got := NewExtractor(400).Extract(page); got != body {
		t.Fatalf("expected articleBody, got %.60q", got)
	}
}

func TestExtractFallsBackToDescriptionAndSelectors(t *testing.T) {
	t.Parallel()

	desc := sentence("desc", 120)
	page := `<script type="application/ld+json">{"articleBody":"short","description":"` + desc + `"}</script><p>x</p>`
	if got := NewExtractor(400).Extract(page); got != desc {
		t.Fatalf("expected description bucket, got %.60q", got)
	}

	para := sentence("story", 100)
	page = `<html><body>
<nav>` + sentence("menu", 200) + `</nav>
<div class="story-body"><p>` + para + `</p><script>var x = 1;</script></div>
<aside>` + sentence("related", 300) + `</aside>
</body></html>`
	if got := NewExtractor(400).Extract(page); got != para {
		t.Fatalf("expected the story body selector, got %.80q", got)
	}
}

func TestExtractGenericFallback(t *testing.T) {
	t.Parallel()

	page := `<html><head><title>T</title><style>p{}</style></head><body>
<nav>Home News</nav>
<h2>Heading Case</h2>
<p>` + sentence("alpha", 50) + ` <a href="https://example.com/x">linked words</a></p>
<p>` + sentence("beta", 50) + `</p>
<img src="a.png" alt="picture"><footer>Copyright</footer>
</body></html>`

	got := NewExtractor(400).Extract(page)
	if !strings.HasPrefix(got, "Heading Case\n\nalpha") {
		t.Fatalf("unexpected start %.40q", got)
	}
	for _, banned := range []string{"Home News", "Copyright", "https://", "p{}", "picture"} {
		if strings.Contains(got, banned) {
			t.Fatalf("unexpected %q in %q", banned, got)
		}
	}
	if !strings.Contains(got, "alpha linked words\n\nbeta") {
		t.Fatalf("link text or paragraph break missing in %q", got)
	}
}

func TestHTMLToTextIsIdempotent(t *testing.T) {
	t.Parallel()

	page := `<div><p>One <b>two</b>   three</p><ul><li>a</li><li>b</li></ul>four<br>five</div>`
	first := HTMLToText(page)
	if first != HTMLToText(page) {
		t.Fatal("conversion must be deterministic")
	}
	if first != "One two three\n\na\nb\n\nfour\nfive" {
		t.Fatalf("unexpected text %q", first)
	}
}

func TestHTMLToTextSkipsChromeAndHrefs(t *testing.T) {
	t.Parallel()

	page := `<body><nav>Menu</nav><h2>Storm Warning</h2><p>See <a href="https://x.test/a">the map</a>.</p>` +
		`<aside>Ad</aside><img alt="pic"><hr><footer>Contacts</footer></body>`
	if got := HTMLToText(page); got != "Storm Warning\n\nSee the map." {
		t.Fatalf("unexpected text %q", got)
	}
}

func TestCollectBodiesIsBounded(t *testing.T) {
	t.Parallel()

	var tree any = map[string]any{"articleBody": "deep"}
	for i := 0; i < maxJSONDepth+5; i++ {
		tree = []any{tree}
	}
	buckets := map[string][]string{}
	collectBodies(tree, buckets)
	if len(buckets["articleBody"]) != 0 {
		t.Fatal("values below the depth bound must be ignored")
	}

	shallow := map[string]any{"a": map[string]any{"text": "x"}, "text": "y"}
	buckets = map[string][]string{}
	collectBodies(shallow, buckets)
	if len(buckets["text"]) != 2 {
		t.Fatalf("expected both text values, got %v", buckets)
	}
}

func TestExtractTitle(t *testing.T) {
	t.Parallel()

	cases := []struct {
		page string
		want string
	}{
		{`<meta property="og:title" content="OG &amp; Title"><title>Plain</title>`, "OG & Title"},
		{`<meta name="twitter:title" content="Tw"><title>Plain</title>`, "Tw"},
		{`<meta name="title" content="Meta">`, "Meta"},
		{"<head><title>  Plain\n Title </title></head>", "Plain Title"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := ExtractTitle(tc.page); got != tc.want {
			t.Fatalf("ExtractTitle(%q) = %q, want %q", tc.page, got, tc.want)
		}
	}
}
