package referrers

import "testing"

func TestSourceName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		// Known referrers
		{"google.com", "google"},
		{"google.co.uk", "google"},
		{"news.ycombinator.com", "hackernews"},
		{"x.com", "x"},
		{"t.co", "x"},
		{"mail.google.com", "gmail"},

		// With www prefix
		{"www.google.com", "google"},
		{"www.reddit.com", "reddit"},

		// Subdomains of known referrers
		{"m.facebook.com", "facebook"},
		{"mobile.twitter.com", "x"},

		// Unknown referrers fall back to the host
		{"example.com", "example.com"},
		{"www.example.com", "example.com"},

		// Case insensitive
		{"GOOGLE.COM", "google"},

		// Empty host stays empty
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			got := SourceName(tt.hostname)
			if got != tt.expected {
				t.Errorf("SourceName(%q) = %q, want %q", tt.hostname, got, tt.expected)
			}
		})
	}
}

func TestFriendlyName(t *testing.T) {
	tests := []struct {
		hostname string
		expected string
	}{
		// Known referrers
		{"google.com", "Google"},
		{"news.ycombinator.com", "Hacker News"},
		{"x.com", "X/Twitter"},
		{"twitter.com", "X/Twitter"},
		{"reddit.com", "Reddit"},
		{"linkedin.com", "LinkedIn"},

		// With www prefix
		{"www.google.com", "Google"},
		{"www.reddit.com", "Reddit"},

		// Subdomains of known referrers
		{"m.facebook.com", "Facebook"},
		{"mobile.twitter.com", "X/Twitter"},

		// Unknown referrers (capitalized)
		{"example.com", "Example.com"},
		{"www.example.com", "Example.com"}, // www. stripped
		{"myblog.io", "Myblog.io"},

		// Case insensitive
		{"GOOGLE.COM", "Google"},
		{"News.Ycombinator.Com", "Hacker News"},
	}

	for _, tt := range tests {
		t.Run(tt.hostname, func(t *testing.T) {
			got := FriendlyName(tt.hostname)
			if got != tt.expected {
				t.Errorf("FriendlyName(%q) = %q, want %q", tt.hostname, got, tt.expected)
			}
		})
	}
}
