// Package device classifies user agents into the coarse device families used
// by the view statistics.
package device

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"go.elara.ws/pcre"
	"gopkg.in/yaml.v3"
)

// Type is the device family a view is attributed to.
type Type string

const (
	Desktop Type = "desktop"
	Mobile  Type = "mobile"
	Tablet  Type = "tablet"
	Unknown Type = "unknown"
)

// AllTypes returns every device family in display order.
func AllTypes() []Type {
	return []Type{Desktop, Mobile, Tablet, Unknown}
}

// ParseType maps a stored device_type column value back to a Type.
func ParseType(value string) (Type, bool) {
	switch t := Type(strings.ToLower(strings.TrimSpace(value))); t {
	case Desktop, Mobile, Tablet, Unknown:
		return t, true
	}
	return Unknown, false
}

func (t Type) String() string {
	return string(t)
}

//go:embed patterns.yml
var patternsFile []byte

// Rule is one entry of the embedded pattern table.
type Rule struct {
	Type  Type   `yaml:"type"`
	Regex string `yaml:"regex"`
}

type compiledRule struct {
	typ   Type
	regex *pcre.Regexp
}

// Classifier matches user agents against an ordered rule list.
type Classifier struct {
	rules []compiledRule
}

// NewClassifier compiles the given rules, keeping their order.
func NewClassifier(rules []Rule) (*Classifier, error) {
	c := &Classifier{rules: make([]compiledRule, 0, len(rules))}
	for _, rule := range rules {
		if _, ok := ParseType(string(rule.Type)); !ok {
			return nil, fmt.Errorf("unknown device type %q", rule.Type)
		}
		regex, err := pcre.Compile("(?i)" + rule.Regex)
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s pattern: %w", rule.Type, err)
		}
		c.rules = append(c.rules, compiledRule{typ: rule.Type, regex: regex})
	}
	return c, nil
}

// Classify returns the device family for userAgent. An empty user agent is
// Unknown, one that matches no rule is Desktop.
func (c *Classifier) Classify(userAgent string) Type {
	if strings.TrimSpace(userAgent) == "" {
		return Unknown
	}
	for _, rule := range c.rules {
		if rule.regex.MatchString(userAgent) {
			return rule.typ
		}
	}
	return Desktop
}

// LoadRules parses the embedded pattern table.
func LoadRules() ([]Rule, error) {
	var rules []Rule
	if err := yaml.Unmarshal(patternsFile, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse patterns.yml: %w", err)
	}
	return rules, nil
}

var (
	defaultClassifier *Classifier
	once              sync.Once
)

func getClassifier() *Classifier {
	once.Do(func() {
		rules, err := LoadRules()
		if err == nil {
			defaultClassifier, err = NewClassifier(rules)
		}
		if err != nil {
			// The table is compiled into the binary, so this only trips on a broken build.
			panic(fmt.Sprintf("device: %v", err))
		}
	})
	return defaultClassifier
}

// Classify classifies userAgent with the embedded rule table.
func Classify(userAgent string) Type {
	return getClassifier().Classify(userAgent)
}
