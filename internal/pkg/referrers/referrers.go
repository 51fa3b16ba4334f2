// Package referrers turns raw Referer headers into display names for the
// analytics dashboard.
package referrers

import (
	"net/url"
	"strings"
)

const (
	// Direct is reported for views without a referer.
	Direct = "Direct"
	// Internal is reported for views referred by the shop itself.
	Internal = "Internal"
)

var knownReferrers = map[string]string{
	// Search engines
	"google.com":     "Google",
	"google.co.uk":   "Google",
	"google.de":      "Google",
	"google.fr":      "Google",
	"google.es":      "Google",
	"google.it":      "Google",
	"google.ca":      "Google",
	"google.com.au":  "Google",
	"google.co.jp":   "Google",
	"google.com.br":  "Google",
	"bing.com":       "Bing",
	"duckduckgo.com": "DuckDuckGo",
	"yahoo.com":      "Yahoo",
	"baidu.com":      "Baidu",
	"yandex.ru":      "Yandex",
	"ecosia.org":     "Ecosia",

	// Shopping and price comparison
	"shopping.google.com": "Google Shopping",
	"idealo.de":           "Idealo",
	"pricerunner.com":     "PriceRunner",
	"kelkoo.com":          "Kelkoo",
	"shopzilla.com":       "Shopzilla",
	"etsy.com":            "Etsy",
	"ebay.com":            "eBay",
	"amazon.com":          "Amazon",

	// Social media
	"x.com":           "X/Twitter",
	"twitter.com":     "X/Twitter",
	"t.co":            "X/Twitter",
	"facebook.com":    "Facebook",
	"fb.com":          "Facebook",
	"l.facebook.com":  "Facebook",
	"lm.facebook.com": "Facebook",
	"instagram.com":   "Instagram",
	"l.instagram.com": "Instagram",
	"tiktok.com":      "TikTok",
	"pinterest.com":   "Pinterest",
	"pin.it":          "Pinterest",
	"reddit.com":      "Reddit",
	"youtube.com":     "YouTube",
	"youtu.be":        "YouTube",
	"whatsapp.com":    "WhatsApp",
	"t.me":            "Telegram",

	// Email providers (for newsletter clicks)
	"mail.google.com":    "Gmail",
	"outlook.live.com":   "Outlook",
	"outlook.office.com": "Outlook",
	"mail.yahoo.com":     "Yahoo Mail",
	"mail.proton.me":     "Proton Mail",

	// Link shorteners
	"bit.ly":      "Bitly",
	"tinyurl.com": "TinyURL",
	"ow.ly":       "Hootsuite",
}

// Source names the origin of a view from its Referer header. Empty or
// unparsable referers count as Direct; referers from shopHost count as
// Internal.
func Source(referer, shopHost string) string {
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return Direct
	}

	u, err := url.Parse(referer)
	if err != nil || u.Hostname() == "" {
		return Direct
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	if shopHost != "" && host == strings.TrimPrefix(strings.ToLower(shopHost), "www.") {
		return Internal
	}
	return FriendlyName(host)
}

// FriendlyName returns a human-friendly name for a referrer hostname.
// Unknown hostnames come back without "www." and with the first letter
// capitalized.
func FriendlyName(hostname string) string {
	hostname = strings.ToLower(hostname)

	if name, ok := knownReferrers[hostname]; ok {
		return name
	}

	if strings.HasPrefix(hostname, "www.") {
		withoutWWW := hostname[4:]
		if name, ok := knownReferrers[withoutWWW]; ok {
			return name
		}
		hostname = withoutWWW
	}

	// Longest matching parent domain wins, so shopping.google.com beats google.com.
	best := ""
	for domain := range knownReferrers {
		if strings.HasSuffix(hostname, "."+domain) && len(domain) > len(best) {
			best = domain
		}
	}
	if best != "" {
		return knownReferrers[best]
	}

	return capitalizeFirst(hostname)
}

func capitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
