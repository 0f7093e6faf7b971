package session

import (
	"net/url"
	"strings"
)

// TrafficSource classifies where a visit came from.
type TrafficSource struct {
	Source string `json:"source"`
	Medium string `json:"medium,omitempty"`
	Domain string `json:"domain,omitempty"`
}

// Direct is the source for visits without a referrer.
var Direct = TrafficSource{Source: "direct"}

type referrerRule struct {
	needles []string
	source  TrafficSource
}

// Ordered: the first rule whose needle occurs in the host wins.
var referrerRules = []referrerRule{
	{[]string{"google"}, TrafficSource{"google", "organic", "google.com"}},
	{[]string{"bing"}, TrafficSource{"bing", "organic", "bing.com"}},
	{[]string{"yahoo"}, TrafficSource{"yahoo", "organic", "yahoo.com"}},
	{[]string{"duckduckgo"}, TrafficSource{"duckduckgo", "organic", "duckduckgo.com"}},
	{[]string{"facebook", "fb.com"}, TrafficSource{"facebook", "social", "facebook.com"}},
	{[]string{"instagram"}, TrafficSource{"instagram", "social", "instagram.com"}},
	{[]string{"linkedin"}, TrafficSource{"linkedin", "social", "linkedin.com"}},
	{[]string{"twitter", "t.co", "x.com"}, TrafficSource{"twitter", "social", "twitter.com"}},
}

// ParseReferrer classifies a referrer URL. Empty or unparseable referrers are direct.
func ParseReferrer(referrer string) TrafficSource {
	referrer = strings.TrimSpace(referrer)
	if referrer == "" {
		return Direct
	}
	u, err := url.Parse(referrer)
	if err != nil || u.Hostname() == "" {
		return Direct
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	for _, rule := range referrerRules {
		for _, needle := range rule.needles {
			if hostMatches(host, needle) {
				return rule.source
			}
		}
	}
	return TrafficSource{Source: "referral", Medium: "referral", Domain: host}
}

// Dotted needles are registrable domains and must match a label boundary,
// so t.co does not match t.com.
func hostMatches(host, needle string) bool {
	if !strings.Contains(needle, ".") {
		return strings.Contains(host, needle)
	}
	return host == needle || strings.HasSuffix(host, "."+needle)
}

// ParseUTM returns a utm traffic source when utm_source is present in query.
func ParseUTM(query url.Values) (TrafficSource, bool) {
	src := query.Get("utm_source")
	if src == "" {
		return TrafficSource{}, false
	}
	medium := query.Get("utm_medium")
	if medium == "" {
		medium = query.Get("utm_campaign")
	}
	if medium == "" {
		medium = "utm"
	}
	return TrafficSource{Source: "utm", Medium: medium, Domain: src}, true
}

// ClassifyTraffic prefers UTM parameters of the landing URL over the referrer.
func ClassifyTraffic(landingURL, referrer string) TrafficSource {
	if landingURL != "" {
		if u, err := url.Parse(landingURL); err == nil {
			if t, ok := ParseUTM(u.Query()); ok {
				return t
			}
		}
	}
	return ParseReferrer(referrer)
}
