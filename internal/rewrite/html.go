package rewrite

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

// urlAttrs is the fixed rule table: which attribute on which element
// holds a URL reference to rewrite. srcset attributes get multi-value
// handling, style attributes and meta refresh targets are handled
// separately, and link[href] is rewritten for every rel.
var urlAttrs = map[string]map[string]bool{
	"a":      {"href": true},
	"link":   {"href": true},
	"script": {"src": true},
	"img":    {"src": true, "srcset": true},
	"source": {"src": true, "srcset": true},
	"iframe": {"src": true},
	"form":   {"action": true},
}

// metaRefreshPattern extracts the URL portion of a meta refresh content
// attribute ("<seconds>; url=<target>"). Deliberately narrow: content
// values that do not match this shape are left as-is.
var metaRefreshPattern = regexp.MustCompile(`(?i)^(\s*[0-9]+\s*;\s*url\s*=\s*)(.+?)(\s*)$`)

type attribute struct {
	key string
	val string
}

// RewriteHTML applies the rule table to an HTML byte stream, emitting
// rewritten markup incrementally. Tokens with nothing to rewrite are
// copied through verbatim, so the document is never materialized in
// memory. Text inside <style> elements runs through the CSS rewriter.
// A malformed individual URL degrades to the resolver's output; only a
// read error on the input stream aborts the pass.
func (c *Context) RewriteHTML(w io.Writer, r io.Reader) error {
	z := html.NewTokenizer(r)
	z.AllowCDATA(true)

	inStyle := false
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			return nil

		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			tag := string(name)
			var attrs []attribute
			if hasAttr {
				for {
					key, val, more := z.TagAttr()
					attrs = append(attrs, attribute{key: string(key), val: string(val)})
					if !more {
						break
					}
				}
			}

			rewritten, changed := c.rewriteAttrs(tag, attrs)
			if !changed {
				if _, err := w.Write(z.Raw()); err != nil {
					return err
				}
			} else if err := writeTag(w, tag, rewritten, tt == html.SelfClosingTagToken); err != nil {
				return err
			}

			if tt == html.StartTagToken && tag == "style" {
				inStyle = true
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if string(name) == "style" {
				inStyle = false
			}
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}

		case html.TextToken:
			if inStyle {
				if _, err := w.Write(c.RewriteCSS(z.Raw())); err != nil {
					return err
				}
			} else if _, err := w.Write(z.Raw()); err != nil {
				return err
			}

		default:
			if _, err := w.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}

// rewriteAttrs applies the rule table to a single element's attributes.
// It reports whether anything changed; unchanged elements are emitted
// from the raw token instead.
func (c *Context) rewriteAttrs(tag string, attrs []attribute) ([]attribute, bool) {
	if len(attrs) == 0 {
		return attrs, false
	}

	isMetaRefresh := false
	if tag == "meta" {
		for _, a := range attrs {
			if a.key == "http-equiv" && strings.EqualFold(a.val, "refresh") {
				isMetaRefresh = true
				break
			}
		}
	}

	out := make([]attribute, len(attrs))
	copy(out, attrs)

	changed := false
	actionRewritten := false
	for i, a := range out {
		if a.val == "" {
			continue
		}
		var next string
		switch {
		case a.key == "style":
			next = string(c.RewriteCSS([]byte(a.val)))
		case isMetaRefresh && a.key == "content":
			next = c.rewriteMetaRefresh(a.val)
		case urlAttrs[tag][a.key]:
			if a.key == "srcset" {
				next = c.rewriteSrcset(a.val)
			} else {
				next = c.ProxifyURL(a.val)
			}
		default:
			continue
		}
		if next != a.val {
			out[i].val = next
			changed = true
			if tag == "form" && a.key == "action" {
				actionRewritten = true
			}
		}
	}

	// Proxied form submissions must stay in the same frame.
	if actionRewritten {
		out = forceSelfTarget(out)
	}

	return out, changed
}

// rewriteSrcset rewrites each URL of a comma-separated srcset value,
// preserving width/density descriptors verbatim.
func (c *Context) rewriteSrcset(val string) string {
	entries := strings.Split(val, ",")
	out := make([]string, 0, len(entries))
	for _, entry := range entries {
		fields := strings.Fields(entry)
		if len(fields) == 0 {
			continue
		}
		fields[0] = c.ProxifyURL(fields[0])
		out = append(out, strings.Join(fields, " "))
	}
	return strings.Join(out, ", ")
}

// rewriteMetaRefresh replaces the URL portion of a refresh content
// value, leaving the delay and surrounding text untouched.
func (c *Context) rewriteMetaRefresh(content string) string {
	m := metaRefreshPattern.FindStringSubmatch(content)
	if m == nil {
		return content
	}
	return m[1] + c.ProxifyURL(m[2]) + m[3]
}

func forceSelfTarget(attrs []attribute) []attribute {
	for i, a := range attrs {
		if a.key == "target" {
			attrs[i].val = "_self"
			return attrs
		}
	}
	return append(attrs, attribute{key: "target", val: "_self"})
}

func writeTag(w io.Writer, tag string, attrs []attribute, selfClosing bool) error {
	if _, err := fmt.Fprintf(w, "<%s", tag); err != nil {
		return err
	}
	for _, a := range attrs {
		if _, err := fmt.Fprintf(w, " %s=\"%s\"", a.key, html.EscapeString(a.val)); err != nil {
			return err
		}
	}
	if selfClosing {
		_, err := io.WriteString(w, "/>")
		return err
	}
	_, err := io.WriteString(w, ">")
	return err
}
