package notion

import "strings"

// IDFromURL extracts the record identifier from a page URL: the suffix after
// the last hyphen of the last path segment. Query and fragment are ignored.
// ok is false when the segment carries no hyphenated suffix.
func IDFromURL(raw string) (id string, ok bool) {
	s := strings.TrimSpace(raw)
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	seg := s[strings.LastIndex(s, "/")+1:]
	i := strings.LastIndex(seg, "-")
	if i < 0 {
		return "", false
	}
	id = seg[i+1:]
	if id == "" {
		return "", false
	}
	for _, r := range id {
		if !(r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			return "", false
		}
	}
	return id, true
}
