package rule

import (
	"regexp"
	"strings"
)

// matcher tests item ids against exact ids and "*" wildcard patterns.
type matcher struct {
	patterns []string
	exact    map[string]struct{}
	globs    []*regexp.Regexp
}

func newMatcher(patterns []string) (matcher, error) {
	m := matcher{exact: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		m.patterns = append(m.patterns, p)
		if !strings.Contains(p, "*") {
			m.exact[p] = struct{}{}
			continue
		}
		parts := strings.Split(p, "*")
		for i := range parts {
			parts[i] = regexp.QuoteMeta(parts[i])
		}
		re, err := regexp.Compile("^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			return matcher{}, err
		}
		m.globs = append(m.globs, re)
	}
	return m, nil
}

func (m matcher) match(id string) bool {
	if _, ok := m.exact[id]; ok {
		return true
	}
	for _, re := range m.globs {
		if re.MatchString(id) {
			return true
		}
	}
	return false
}
