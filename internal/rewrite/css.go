package rewrite

import (
	"bytes"
	"regexp"
)

// cssURLPattern matches url(...) function syntax, optionally single or
// double quoted. The capture group is the reference itself, so quoting
// around it survives a rewrite untouched.
var cssURLPattern = regexp.MustCompile(`url\(\s*["']?([^"'()\s]+)["']?\s*\)`)

// RewriteCSS returns css with every url(...) reference replaced by its
// proxied form. data: URIs pass through unchanged, and references that
// fail to resolve degrade to the resolver's output instead of breaking
// the sheet. The input slice is not modified.
func (c *Context) RewriteCSS(css []byte) []byte {
	matches := cssURLPattern.FindAllSubmatchIndex(css, -1)
	if matches == nil {
		return css
	}

	var buf bytes.Buffer
	buf.Grow(len(css))
	last := 0
	for _, m := range matches {
		start, end := m[2], m[3]
		buf.Write(css[last:start])
		buf.WriteString(c.ProxifyURL(string(css[start:end])))
		last = end
	}
	buf.Write(css[last:])
	return buf.Bytes()
}
