// Package channels classifies touch events into marketing channels and
// filters bot traffic. Rules live in an embedded YAML database so they can be
// tuned without touching Go code.
package channels

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

//go:embed rules.yml
var rulesFS embed.FS

// Channel names produced by the classifier. Touchpoints accept free-text
// channels from the SDK; these are only the values Classify can emit.
const (
	PaidSearch    = "paid_search"
	OrganicSearch = "organic_search"
	PaidSocial    = "paid_social"
	OrganicSocial = "organic_social"
	Email         = "email"
	Affiliate     = "affiliate"
	Display       = "display"
	Video         = "video"
	Referral      = "referral"
	Direct        = "direct"
)

// ChannelRule matches a touch event when every non-empty pattern matches its
// corresponding field. Rules are evaluated in database order.
type ChannelRule struct {
	Channel  string `yaml:"channel"`
	Medium   string `yaml:"medium,omitempty"`
	Source   string `yaml:"source,omitempty"`
	Referrer string `yaml:"referrer,omitempty"`
}

// ClickIDRule forces a paid channel when the named query parameter is present
// on the landing URL, regardless of UTM tagging.
type ClickIDRule struct {
	Param   string `yaml:"param"`
	Channel string `yaml:"channel"`
}

// BotEntry identifies non-human traffic by user agent.
type BotEntry struct {
	Regex string `yaml:"regex"`
	Name  string `yaml:"name"`
}

type ruleDatabase struct {
	ClickIDs []ClickIDRule `yaml:"click_ids"`
	Channels []ChannelRule `yaml:"channels"`
	Bots     []BotEntry    `yaml:"bots"`
}

// RegexCache compiles patterns on first use and reuses them afterwards.
type RegexCache struct {
	compiled map[string]*pcre.Regexp
	mutex    sync.RWMutex
}

func NewRegexCache() *RegexCache {
	return &RegexCache{compiled: make(map[string]*pcre.Regexp)}
}

func (c *RegexCache) get(pattern string) (*pcre.Regexp, error) {
	c.mutex.RLock()
	re, ok := c.compiled[pattern]
	c.mutex.RUnlock()
	if ok {
		return re, nil
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()
	if re, ok := c.compiled[pattern]; ok {
		return re, nil
	}

	re, err := pcre.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile pattern %q: %w", pattern, err)
	}
	c.compiled[pattern] = re
	return re, nil
}

// Classifier evaluates the embedded rule database against touch events.
type Classifier struct {
	db    ruleDatabase
	cache *RegexCache
}

var (
	classifierInstance *Classifier
	classifierOnce     sync.Once
	classifierErr      error
)

func getClassifier() (*Classifier, error) {
	classifierOnce.Do(func() {
		classifierInstance, classifierErr = newClassifier()
	})
	return classifierInstance, classifierErr
}

func newClassifier() (*Classifier, error) {
	raw, err := rulesFS.ReadFile("rules.yml")
	if err != nil {
		return nil, fmt.Errorf("failed to read channel rules: %w", err)
	}

	var db ruleDatabase
	if err := yaml.Unmarshal(raw, &db); err != nil {
		return nil, fmt.Errorf("failed to parse channel rules: %w", err)
	}

	return &Classifier{db: db, cache: NewRegexCache()}, nil
}

// TouchContext carries the raw signals of a single touch event. All fields
// are optional; empty fields simply fail the patterns that target them.
type TouchContext struct {
	Source       string
	Medium       string
	Campaign     string
	ReferrerHost string
	QueryParams  map[string]string
}

// Classify maps a touch event to a marketing channel. Click-id parameters
// take precedence over UTM tags, which take precedence over the referrer.
// Events with no matching signal are direct.
func Classify(tc TouchContext) string {
	classifier, err := getClassifier()
	if err != nil {
		return Direct
	}
	return classifier.classify(tc)
}

func (c *Classifier) classify(tc TouchContext) string {
	for _, rule := range c.db.ClickIDs {
		if _, ok := tc.QueryParams[rule.Param]; ok {
			return rule.Channel
		}
	}

	source := strings.ToLower(strings.TrimSpace(tc.Source))
	medium := strings.ToLower(strings.TrimSpace(tc.Medium))
	referrer := normalizeHost(tc.ReferrerHost)

	for _, rule := range c.db.Channels {
		if c.ruleMatches(rule, source, medium, referrer) {
			return rule.Channel
		}
	}

	return Direct
}

func (c *Classifier) ruleMatches(rule ChannelRule, source, medium, referrer string) bool {
	if rule.Medium != "" && !c.matches(rule.Medium, medium) {
		return false
	}
	if rule.Source != "" && !c.matches(rule.Source, source) {
		return false
	}
	if rule.Referrer != "" && !c.matches(rule.Referrer, referrer) {
		return false
	}
	return rule.Medium != "" || rule.Source != "" || rule.Referrer != ""
}

func (c *Classifier) matches(pattern, value string) bool {
	if value == "" {
		return false
	}
	re, err := c.cache.get(pattern)
	if err != nil {
		return false
	}
	return re.MatchString(value)
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, "www.")
	return host
}

// IsBot reports whether the user agent belongs to a crawler, monitor, or
// automation tool. Unknown agents are treated as human.
func IsBot(userAgent string) bool {
	if userAgent == "" {
		return false
	}
	classifier, err := getClassifier()
	if err != nil {
		return false
	}
	for _, bot := range classifier.db.Bots {
		re, err := classifier.cache.get(bot.Regex)
		if err != nil {
			continue
		}
		if re.MatchString(userAgent) {
			return true
		}
	}
	return false
}

// BotName returns the matching bot entry name, or an empty string for human
// traffic. Used by diagnostics endpoints.
func BotName(userAgent string) string {
	if userAgent == "" {
		return ""
	}
	classifier, err := getClassifier()
	if err != nil {
		return ""
	}
	for _, bot := range classifier.db.Bots {
		re, err := classifier.cache.get(bot.Regex)
		if err != nil {
			continue
		}
		if re.MatchString(userAgent) {
			return bot.Name
		}
	}
	return ""
}
