package referrers

import "strings"

// Referrer is a known traffic origin. Source is the canonical slug recorded
// on touchpoints when the landing URL carries no utm_source; Name is the
// label shown in reports.
type Referrer struct {
	Source string
	Name   string
}

// Common referrer hostnames mapped to canonical sources and display names
var knownReferrers = map[string]Referrer{
	// Search engines
	"google.com":       {"google", "Google"},
	"google.co.uk":     {"google", "Google"},
	"google.de":        {"google", "Google"},
	"google.fr":        {"google", "Google"},
	"google.es":        {"google", "Google"},
	"google.it":        {"google", "Google"},
	"google.ca":        {"google", "Google"},
	"google.com.au":    {"google", "Google"},
	"google.co.jp":     {"google", "Google"},
	"google.com.br":    {"google", "Google"},
	"bing.com":         {"bing", "Bing"},
	"duckduckgo.com":   {"duckduckgo", "DuckDuckGo"},
	"yahoo.com":        {"yahoo", "Yahoo"},
	"search.yahoo.com": {"yahoo", "Yahoo"},
	"baidu.com":        {"baidu", "Baidu"},
	"yandex.ru":        {"yandex", "Yandex"},
	"yandex.com":       {"yandex", "Yandex"},
	"ecosia.org":       {"ecosia", "Ecosia"},
	"kagi.com":         {"kagi", "Kagi"},
	"search.brave.com": {"brave", "Brave Search"},

	// Social networks
	"x.com":           {"x", "X/Twitter"},
	"twitter.com":     {"x", "X/Twitter"},
	"t.co":            {"x", "X/Twitter"},
	"facebook.com":    {"facebook", "Facebook"},
	"fb.com":          {"facebook", "Facebook"},
	"l.facebook.com":  {"facebook", "Facebook"},
	"lm.facebook.com": {"facebook", "Facebook"},
	"instagram.com":   {"instagram", "Instagram"},
	"l.instagram.com": {"instagram", "Instagram"},
	"linkedin.com":    {"linkedin", "LinkedIn"},
	"lnkd.in":         {"linkedin", "LinkedIn"},
	"tiktok.com":      {"tiktok", "TikTok"},
	"pinterest.com":   {"pinterest", "Pinterest"},
	"reddit.com":      {"reddit", "Reddit"},
	"old.reddit.com":  {"reddit", "Reddit"},
	"threads.net":     {"threads", "Threads"},
	"bsky.app":        {"bluesky", "Bluesky"},
	"mastodon.social": {"mastodon", "Mastodon"},
	"youtube.com":     {"youtube", "YouTube"},
	"youtu.be":        {"youtube", "YouTube"},
	"snapchat.com":    {"snapchat", "Snapchat"},
	"discord.com":     {"discord", "Discord"},
	"discordapp.com":  {"discord", "Discord"},
	"whatsapp.com":    {"whatsapp", "WhatsApp"},
	"telegram.org":    {"telegram", "Telegram"},
	"t.me":            {"telegram", "Telegram"},
	"slack.com":       {"slack", "Slack"},

	// Tech communities
	"news.ycombinator.com": {"hackernews", "Hacker News"},
	"hn.algolia.com":       {"hackernews", "Hacker News"},
	"lobste.rs":            {"lobsters", "Lobsters"},
	"producthunt.com":      {"producthunt", "Product Hunt"},
	"indiehackers.com":     {"indiehackers", "Indie Hackers"},
	"dev.to":               {"devto", "DEV Community"},
	"hashnode.com":         {"hashnode", "Hashnode"},
	"medium.com":           {"medium", "Medium"},
	"substack.com":         {"substack", "Substack"},
	"github.com":           {"github", "GitHub"},
	"gitlab.com":           {"gitlab", "GitLab"},
	"stackoverflow.com":    {"stackoverflow", "Stack Overflow"},
	"quora.com":            {"quora", "Quora"},

	// Email providers (newsletter clicks)
	"mail.google.com":    {"gmail", "Gmail"},
	"outlook.live.com":   {"outlook", "Outlook"},
	"outlook.office.com": {"outlook", "Outlook"},
	"mail.yahoo.com":     {"yahoo_mail", "Yahoo Mail"},
	"protonmail.com":     {"protonmail", "Proton Mail"},
	"mail.proton.me":     {"protonmail", "Proton Mail"},

	// Link shorteners
	"bit.ly":      {"bitly", "Bitly"},
	"tinyurl.com": {"tinyurl", "TinyURL"},
	"ow.ly":       {"hootsuite", "Hootsuite"},
}

// Lookup resolves a referrer hostname against the known list, trying the
// exact host, the host without its www. prefix, and parent domains.
func Lookup(hostname string) (Referrer, bool) {
	hostname = strings.ToLower(hostname)

	if ref, ok := knownReferrers[hostname]; ok {
		return ref, true
	}

	if strings.HasPrefix(hostname, "www.") {
		hostname = hostname[4:]
		if ref, ok := knownReferrers[hostname]; ok {
			return ref, true
		}
	}

	for domain, ref := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) {
			return ref, true
		}
	}

	return Referrer{}, false
}

// SourceName returns the canonical source slug for a referrer hostname.
// Unknown hostnames fall back to the hostname itself, lowercased and with
// the www. prefix removed, so touchpoints never lose their origin.
func SourceName(hostname string) string {
	if hostname == "" {
		return ""
	}
	if ref, ok := Lookup(hostname); ok {
		return ref.Source
	}
	return strings.TrimPrefix(strings.ToLower(hostname), "www.")
}

// FriendlyName returns a display name for a referrer hostname. Unknown
// hostnames are capitalized with the www. prefix removed.
func FriendlyName(hostname string) string {
	if ref, ok := Lookup(hostname); ok {
		return ref.Name
	}
	hostname = strings.TrimPrefix(strings.ToLower(hostname), "www.")
	return capitalizeFirst(hostname)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
