package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProfileIsStableUntilRotated(t *testing.T) {
	c := NewCatalog(Options{})

	first := c.Profile("amazon")
	second := c.Profile("amazon")
	require.Equal(t, first.UserAgent, second.UserAgent)
	require.Equal(t, first.Headers, second.Headers)
}

func TestRotateEventuallyChangesAgent(t *testing.T) {
	c := NewCatalog(Options{})

	seen := map[string]struct{}{}
	for i := 0; i < 50; i++ {
		seen[c.Profile("ebay").UserAgent] = struct{}{}
		c.Rotate("ebay")
	}
	// 50 independent draws from the builtin list all collide only with
	// vanishing probability.
	require.Greater(t, len(seen), 1)
}

func TestProfilesAreIndependentPerMarket(t *testing.T) {
	c := NewCatalog(Options{})

	amazon := c.Profile("amazon")
	c.Rotate("ebay")
	require.Equal(t, amazon, c.Profile("amazon"))
}

func TestProfileCarriesRealisticHeaders(t *testing.T) {
	c := NewCatalog(Options{})
	p := c.Profile("walmart")

	require.NotEmpty(t, p.UserAgent)
	require.Equal(t, p.UserAgent, p.Headers["User-Agent"])
	assert.NotEmpty(t, p.Headers["Accept"])
	assert.NotEmpty(t, p.Headers["Accept-Language"])
	assert.Equal(t, "1", p.Headers["Upgrade-Insecure-Requests"])
}

func TestAmazonOverridesAcceptLanguage(t *testing.T) {
	c := NewCatalog(Options{})
	p := c.Profile("Amazon")

	require.Equal(t, "en-US,en;q=0.5", p.Headers["Accept-Language"])
}

func TestHeadersCarryOptionalReferer(t *testing.T) {
	c := NewCatalog(Options{})

	h := c.Headers("etsy", "https://www.etsy.com/")
	require.Equal(t, "https://www.etsy.com/", h.Get("Referer"))
	require.Equal(t, c.Profile("etsy").UserAgent, h.Get("User-Agent"))

	bare := c.Headers("etsy", "")
	require.Empty(t, bare.Get("Referer"))
}

func TestDelayRanges(t *testing.T) {
	c := NewCatalog(Options{})

	testCases := []struct {
		market string
		min    time.Duration
		max    time.Duration
	}{
		{"amazon", 3 * time.Second, 12 * time.Second},
		{"etsy", 4 * time.Second, 15 * time.Second},
		{"ebay", 2 * time.Second, 8 * time.Second},
		{"walmart", 3 * time.Second, 10 * time.Second},
		{"shopify", 2 * time.Second, 7 * time.Second},
		{"somewhere-else", 2 * time.Second, 8 * time.Second},
	}
	for _, tc := range testCases {
		t.Run(tc.market, func(t *testing.T) {
			minDelay, maxDelay := c.DelayRange(tc.market)
			assert.Equal(t, tc.min, minDelay)
			assert.Equal(t, tc.max, maxDelay)
		})
	}
}

func TestBlockPhrases(t *testing.T) {
	c := NewCatalog(Options{})

	require.Contains(t, c.BlockPhrases("amazon"), "unusual traffic")
	require.Contains(t, c.BlockPhrases("ETSY"), "temporarily unavailable")

	fallback := c.BlockPhrases("no-such-market")
	require.Equal(t, []string{"captcha", "blocked", "access denied"}, fallback)
}

func TestBlockPhrasesReturnsACopy(t *testing.T) {
	c := NewCatalog(Options{})

	phrases := c.BlockPhrases("shopify")
	phrases[0] = "mutated"
	require.Contains(t, c.BlockPhrases("shopify"), "captcha")
}

func TestProfileTTLExpiresIdentities(t *testing.T) {
	c := NewCatalog(Options{ProfileTTL: 10 * time.Millisecond})

	seen := map[string]struct{}{}
	for i := 0; i < 30; i++ {
		seen[c.Profile("etsy").UserAgent] = struct{}{}
		time.Sleep(15 * time.Millisecond)
	}
	require.Greater(t, len(seen), 1)
}
