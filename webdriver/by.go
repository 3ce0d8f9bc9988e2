package webdriver

import (
	"fmt"
	"strings"
)

// Locator strategies.
const (
	UsingCSSSelector = "css selector"
	UsingXPath       = "xpath"
)

// By is a strategy for locating an element on the page.
//
// Locating by ID, name, or tag name is expressed as a CSS selector, because the W3C
// protocol removed those strategies and every endpoint understands CSS selectors.
type By struct {
	Using string `json:"using"`
	Value string `json:"value"`

	description string
}

func ByCSSSelector(selector string) By {
	return By{Using: UsingCSSSelector, Value: selector, description: "css selector " + selector}
}

func ByID(id string) By {
	return By{Using: UsingCSSSelector, Value: "#" + cssEscape(id), description: "id " + id}
}

func ByName(name string) By {
	return By{Using: UsingCSSSelector, Value: fmt.Sprintf(`[name="%s"]`, cssQuote(name)), description: "name " + name}
}

func ByTagName(tag string) By {
	return By{Using: UsingCSSSelector, Value: tag, description: "tag name " + tag}
}

func ByXPath(xpath string) By {
	return By{Using: UsingXPath, Value: xpath, description: "xpath " + xpath}
}

func (b By) String() string {
	if b.description != "" {
		return b.description
	}
	return b.Using + " " + b.Value
}

// cssEscape escapes an identifier for use in a CSS selector.
func cssEscape(ident string) string {
	var sb strings.Builder
	for i, r := range ident {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_', r == '-', r >= 0x80:
			sb.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				fmt.Fprintf(&sb, `\%x `, r)
			} else {
				sb.WriteRune(r)
			}
		default:
			sb.WriteRune('\\')
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func cssQuote(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
