package references

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Pattern extracts a bucket and an encoded object path from a URL. The
// expression must have the named groups "bucket" and "object".
type Pattern struct {
	Name string
	re   *regexp.Regexp
}

// DefaultPatterns are the URL encodings produced by the object store.
var DefaultPatterns = []string{
	// Download URLs: the object path is a single escaped segment.
	`^https?://firebasestorage\.googleapis\.com/v0/b/(?P<bucket>[^/]+)/o/(?P<object>[^?#]+)`,
	// Direct and signed URLs.
	`^https?://storage\.googleapis\.com/(?P<bucket>[^/]+)/(?P<object>[^?#]+)`,
	`^https?://(?P<bucket>[^/]+)\.storage\.googleapis\.com/(?P<object>[^?#]+)`,
	`^gs://(?P<bucket>[^/]+)/(?P<object>[^?#]+)`,
}

// CompilePatterns compiles expressions into patterns.
func CompilePatterns(exprs []string) ([]Pattern, error) {
	patterns := make([]Pattern, 0, len(exprs))
	for _, expr := range exprs {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("invalid url pattern %q: %w", expr, err)
		}
		if re.SubexpIndex("bucket") < 0 || re.SubexpIndex("object") < 0 {
			return nil, fmt.Errorf("url pattern %q needs bucket and object groups", expr)
		}
		patterns = append(patterns, Pattern{Name: expr, re: re})
	}
	return patterns, nil
}

// Parser decodes object locations from reference URLs.
type Parser struct {
	patterns []Pattern
}

// NewParser creates a parser trying patterns in order.
func NewParser(patterns []Pattern) *Parser {
	return &Parser{patterns: patterns}
}

// Parse returns the bucket and the decoded object name of raw. ok is false
// when no pattern matches or the path cannot be decoded.
func (p *Parser) Parse(raw string) (bucket, object string, ok bool) {
	raw = strings.TrimSpace(raw)
	for _, pat := range p.patterns {
		m := pat.re.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		bucket = m[pat.re.SubexpIndex("bucket")]
		encoded := m[pat.re.SubexpIndex("object")]
		name, err := url.PathUnescape(encoded)
		if err != nil || name == "" {
			return "", "", false
		}
		return bucket, name, true
	}
	return "", "", false
}

// LooksLikeURL reports whether a field value is worth treating as a
// reference.
func LooksLikeURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://") || strings.HasPrefix(v, "gs://")
}
