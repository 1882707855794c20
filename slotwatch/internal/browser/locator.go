package browser

import "fmt"

// By selects how a Locator's value is interpreted.
type By int

const (
	ByCSS By = iota
	ByXPath
	ByID
)

// Locator addresses one element on the page.
type Locator struct {
	By    By
	Value string
}

// CSS locates by CSS selector.
func CSS(sel string) Locator { return Locator{By: ByCSS, Value: sel} }

// XPath locates by XPath expression.
func XPath(expr string) Locator { return Locator{By: ByXPath, Value: expr} }

// ID locates by element id.
func ID(id string) Locator { return Locator{By: ByID, Value: id} }

// selector returns the CSS selector, or the XPath for ByXPath, and whether
// the result is an XPath.
func (l Locator) selector() (string, bool) {
	switch l.By {
	case ByXPath:
		return l.Value, true
	case ByID:
		return "#" + l.Value, false
	default:
		return l.Value, false
	}
}

func (l Locator) String() string {
	switch l.By {
	case ByXPath:
		return fmt.Sprintf("xpath(%s)", l.Value)
	case ByID:
		return fmt.Sprintf("id(%s)", l.Value)
	default:
		return fmt.Sprintf("css(%s)", l.Value)
	}
}
