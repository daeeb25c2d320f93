package channels_test

import (
	"testing"

	"attriflow/internal/pkg/channels"
)

func TestClassify(t *testing.T) {
	testCases := []struct {
		name     string
		tc       channels.TouchContext
		expected string
	}{
		{
			name:     "gclid forces paid search over missing UTM",
			tc:       channels.TouchContext{QueryParams: map[string]string{"gclid": "abc123"}},
			expected: channels.PaidSearch,
		},
		{
			name: "fbclid forces paid social over organic referrer",
			tc: channels.TouchContext{
				ReferrerHost: "www.facebook.com",
				QueryParams:  map[string]string{"fbclid": "IwAR"},
			},
			expected: channels.PaidSocial,
		},
		{
			name:     "msclkid forces paid search",
			tc:       channels.TouchContext{QueryParams: map[string]string{"msclkid": "xyz"}},
			expected: channels.PaidSearch,
		},
		{
			name:     "cpc medium is paid search",
			tc:       channels.TouchContext{Source: "google", Medium: "cpc"},
			expected: channels.PaidSearch,
		},
		{
			name:     "uppercase medium still matches",
			tc:       channels.TouchContext{Source: "Google", Medium: "CPC"},
			expected: channels.PaidSearch,
		},
		{
			name:     "paid_social medium",
			tc:       channels.TouchContext{Source: "facebook", Medium: "paid_social"},
			expected: channels.PaidSocial,
		},
		{
			name:     "display medium",
			tc:       channels.TouchContext{Source: "gdn", Medium: "display"},
			expected: channels.Display,
		},
		{
			name:     "newsletter medium is email",
			tc:       channels.TouchContext{Source: "weekly", Medium: "newsletter"},
			expected: channels.Email,
		},
		{
			name:     "klaviyo source is email without medium",
			tc:       channels.TouchContext{Source: "klaviyo"},
			expected: channels.Email,
		},
		{
			name:     "gmail referrer is email",
			tc:       channels.TouchContext{ReferrerHost: "mail.google.com"},
			expected: channels.Email,
		},
		{
			name:     "affiliate medium",
			tc:       channels.TouchContext{Source: "partnerstack", Medium: "affiliate"},
			expected: channels.Affiliate,
		},
		{
			name:     "google source without paid medium is organic search",
			tc:       channels.TouchContext{Source: "google", Medium: "organic"},
			expected: channels.OrganicSearch,
		},
		{
			name:     "google referrer without UTM is organic search",
			tc:       channels.TouchContext{ReferrerHost: "www.google.com"},
			expected: channels.OrganicSearch,
		},
		{
			name:     "google country TLD referrer is organic search",
			tc:       channels.TouchContext{ReferrerHost: "google.co.uk"},
			expected: channels.OrganicSearch,
		},
		{
			name:     "linkedin source without paid medium is organic social",
			tc:       channels.TouchContext{Source: "linkedin"},
			expected: channels.OrganicSocial,
		},
		{
			name:     "t.co referrer is organic social",
			tc:       channels.TouchContext{ReferrerHost: "t.co"},
			expected: channels.OrganicSocial,
		},
		{
			name:     "unknown referrer is referral",
			tc:       channels.TouchContext{ReferrerHost: "news.ycombinator.com"},
			expected: channels.Referral,
		},
		{
			name:     "no signals is direct",
			tc:       channels.TouchContext{},
			expected: channels.Direct,
		},
		{
			name:     "unmatched source with no referrer is direct",
			tc:       channels.TouchContext{Source: "qr-code"},
			expected: channels.Direct,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := channels.Classify(tc.tc)
			if got != tc.expected {
				t.Errorf("Classify(%+v) = %q, expected %q", tc.tc, got, tc.expected)
			}
		})
	}
}

func TestIsBot(t *testing.T) {
	testCases := []struct {
		name      string
		userAgent string
		expected  bool
	}{
		{
			name:      "Googlebot",
			userAgent: "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
			expected:  true,
		},
		{
			name:      "Ahrefs crawler",
			userAgent: "Mozilla/5.0 (compatible; AhrefsBot/7.0; +http://ahrefs.com/robot/)",
			expected:  true,
		},
		{
			name:      "curl",
			userAgent: "curl/8.4.0",
			expected:  true,
		},
		{
			name:      "headless chrome",
			userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) HeadlessChrome/120.0.0.0 Safari/537.36",
			expected:  true,
		},
		{
			name:      "generic spider keyword",
			userAgent: "SomethingSpider/1.1 (+https://example.com)",
			expected:  true,
		},
		{
			name:      "Chrome on Windows",
			userAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
			expected:  false,
		},
		{
			name:      "Safari on iPhone",
			userAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
			expected:  false,
		},
		{
			name:      "empty user agent",
			userAgent: "",
			expected:  false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := channels.IsBot(tc.userAgent); got != tc.expected {
				t.Errorf("IsBot(%q) = %v, expected %v", tc.userAgent, got, tc.expected)
			}
		})
	}
}

func TestBotName(t *testing.T) {
	if name := channels.BotName("Mozilla/5.0 (compatible; Googlebot/2.1)"); name != "Google" {
		t.Errorf("expected Google, got %q", name)
	}
	if name := channels.BotName("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Safari/605.1.15"); name != "" {
		t.Errorf("expected empty name for human traffic, got %q", name)
	}
}
