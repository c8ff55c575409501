package route

import (
	"fmt"
	"regexp"
	"strings"
)

// placeholderRe locates <name> capture placeholders inside a path template.
// Placeholder names are documentation only; matching is strictly positional.
var placeholderRe = regexp.MustCompile(`<[^/<>]*>`)

// compilePattern turns a path template into an anchored matcher plus its
// capture arity. Each placeholder matches one or more characters up to the
// next path separator; all other characters match literally. The pattern is
// anchored at both ends so a route can never partially match a path.
func compilePattern(template string) (*regexp.Regexp, int, error) {
	var b strings.Builder
	b.WriteString("^")

	arity := 0
	rest := template
	for {
		loc := placeholderRe.FindStringIndex(rest)
		if loc == nil {
			b.WriteString(regexp.QuoteMeta(rest))
			break
		}
		b.WriteString(regexp.QuoteMeta(rest[:loc[0]]))
		b.WriteString(`([^/]+)`)
		arity++
		rest = rest[loc[1]:]
	}
	b.WriteString("$")

	re, err := regexp.Compile(b.String())
	if err != nil {
		return nil, 0, fmt.Errorf("compile template %q: %w", template, err)
	}
	return re, arity, nil
}
