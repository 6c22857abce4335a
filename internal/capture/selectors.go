package capture

import "strings"

// first returns the first element matched by any selector, trying selectors
// in order, or nil.
func first(el Element, selectors []string) Element {
	for _, sel := range selectors {
		if found := el.Find(sel); len(found) > 0 {
			return found[0]
		}
	}
	return nil
}

// firstText returns the text of the first non-empty match.
func firstText(el Element, selectors []string) string {
	for _, sel := range selectors {
		for _, found := range el.Find(sel) {
			if text := found.Text(); text != "" {
				return text
			}
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value among matches.
func firstAttr(el Element, selectors []string, attr string) string {
	for _, sel := range selectors {
		for _, found := range el.Find(sel) {
			if v := strings.TrimSpace(found.Attr(attr)); v != "" {
				return v
			}
		}
	}
	return ""
}

// allTexts returns the non-empty texts of the first selector that matches
// anything, deduplicated in order.
func allTexts(el Element, selectors []string) []string {
	for _, sel := range selectors {
		found := el.Find(sel)
		if len(found) == 0 {
			continue
		}
		seen := make(map[string]bool)
		var out []string
		for _, f := range found {
			text := f.Text()
			if text != "" && !seen[text] {
				seen[text] = true
				out = append(out, text)
			}
		}
		return out
	}
	return nil
}
