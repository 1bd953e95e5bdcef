package dom_test

import (
	"strings"
	"testing"

	"github.com/antchfx/htmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/scalpel-agent/internal/browser/dom"
)

const locatorPage = `<html><body>
	<form id="search">
		<input name="q"><button>Go</button><button>Reset</button>
	</form>
	<div class="results">
		<a href="/1">One</a>
		<!-- ad slot -->
		<a href="/2">Two</a>
		<span id="dup">A</span><span id="dup">B</span>
	</div>
	<div><p id="it's">quote</p><p id="say &quot;it's&quot;">both</p></div>
</body></html>`

func TestLocatorFor(t *testing.T) {
	doc, err := htmlquery.Parse(strings.NewReader(locatorPage))
	require.NoError(t, err)

	tests := []struct {
		name   string
		target string
		want   string
	}{
		{"PositionalFromRoot", "//body", "/html[1]/body[1]"},
		{"AnchoredAtUniqueID", "//form", `//*[@id='search']`},
		{"BelowUniqueID", "(//button)[2]", `//*[@id='search']/button[2]`},
		{"SiblingsAcrossComment", "(//a)[2]", "/html[1]/body[1]/div[1]/a[2]"},
		{"DuplicateIDIgnored", "(//span)[2]", "/html[1]/body[1]/div[1]/span[2]"},
		{"ApostropheInID", "//div[2]/p[1]", `//*[@id="it's"]`},
		{"BothQuotesInID", "//div[2]/p[2]", `//*[@id=concat('say "it', "'", 's"')]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := htmlquery.FindOne(doc, tt.target)
			require.NotNil(t, node, "fixture has no node at %s", tt.target)

			got := dom.LocatorFor(node)
			assert.Equal(t, tt.want, got)

			matches := htmlquery.Find(doc, got)
			require.Len(t, matches, 1, "locator %s is not unique", got)
			assert.Same(t, node, matches[0])
		})
	}

	t.Run("Nil", func(t *testing.T) {
		assert.Empty(t, dom.LocatorFor(nil))
	})
}
