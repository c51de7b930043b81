package sessions

import (
	"regexp"
	"strings"
)

// RoutePattern collapses one dynamic route shape into its canonical template.
// Pattern is RE2 syntax so the same table drives the in-memory engine and the
// warehouse SQL (ClickHouse match()).
type RoutePattern struct {
	Pattern  string
	Template string
}

// DefaultRoutes are the dynamic routes of the web app.
var DefaultRoutes = []RoutePattern{
	{Pattern: `^/posts/[^/]+$`, Template: "/posts/[id]"},
	{Pattern: `^/posts/[^/]+/edit$`, Template: "/posts/[id]/edit"},
	{Pattern: `^/users/[^/]+$`, Template: "/users/[id]"},
	{Pattern: `^/u/[^/]+$`, Template: "/u/[handle]"},
	{Pattern: `^/collections/[^/]+$`, Template: "/collections/[id]"},
	{Pattern: `^/images/[^/]+$`, Template: "/images/[id]"},
	{Pattern: `^/generations/[^/]+$`, Template: "/generations/[id]"},
	{Pattern: `^/tags/[^/]+$`, Template: "/tags/[slug]"},
}

// DefaultStaticPaths look like dynamic routes but are real pages.
var DefaultStaticPaths = []string{
	"/posts/new",
	"/users/me",
	"/collections/new",
	"/generations/new",
}

// Regular expressions of the path cleanup steps, shared with the SQL builder.
const (
	SchemeHostPattern    = `^(?:[a-zA-Z][a-zA-Z0-9+.-]*:)?//[^/?#]*`
	QueryFragmentPattern = `[?#].*$`
	RepeatedSlashPattern = `/{2,}`
	TrailingSlashPattern = `/+$`
)

var (
	schemeHostRe    = regexp.MustCompile(SchemeHostPattern)
	queryFragmentRe = regexp.MustCompile(QueryFragmentPattern)
	repeatedSlashRe = regexp.MustCompile(RepeatedSlashPattern)
	trailingSlashRe = regexp.MustCompile(TrailingSlashPattern)
)

type compiledRoute struct {
	re       *regexp.Regexp
	template string
}

// Normalizer canonicalizes page paths and titles.
type Normalizer struct {
	routes      []RoutePattern
	compiled    []compiledRoute
	static      map[string]struct{}
	staticList  []string
	titleSuffix string
}

// NewNormalizer compiles routes. appName, when set, is trimmed from titles of
// the form "Page | appName".
func NewNormalizer(routes []RoutePattern, static []string, appName string) (*Normalizer, error) {
	n := &Normalizer{
		routes:     routes,
		static:     make(map[string]struct{}, len(static)),
		staticList: static,
	}
	if appName != "" {
		n.titleSuffix = "| " + appName
	}
	for _, r := range routes {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, err
		}
		n.compiled = append(n.compiled, compiledRoute{re: re, template: r.Template})
	}
	for _, p := range static {
		n.static[p] = struct{}{}
	}
	return n, nil
}

// DefaultNormalizer uses DefaultRoutes and DefaultStaticPaths.
func DefaultNormalizer() *Normalizer {
	n, err := NewNormalizer(DefaultRoutes, DefaultStaticPaths, "")
	if err != nil {
		panic(err)
	}
	return n
}

func (n *Normalizer) Routes() []RoutePattern { return n.routes }
func (n *Normalizer) StaticPaths() []string  { return n.staticList }

// NormalizePath reduces a page location (absolute URL or path) to a canonical
// path: no scheme, host, query or fragment, never empty, no trailing slash
// except for the root, dynamic segments collapsed into their template.
func (n *Normalizer) NormalizePath(raw string) string {
	p := CleanPath(raw)
	if _, ok := n.static[p]; ok {
		return p
	}
	for _, r := range n.compiled {
		if r.re.MatchString(p) {
			return r.template
		}
	}
	return p
}

// CleanPath applies every normalization step except route collapsing.
func CleanPath(raw string) string {
	p := strings.TrimSpace(raw)
	p = schemeHostRe.ReplaceAllString(p, "")
	p = queryFragmentRe.ReplaceAllString(p, "")
	p = repeatedSlashRe.ReplaceAllString(p, "/")
	p = trailingSlashRe.ReplaceAllString(p, "")
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

var placeholderTitles = map[string]struct{}{
	"(not set)": {},
	"undefined": {},
	"null":      {},
	"untitled":  {},
	"-":         {},
}

// NormalizeTitle returns nil for blank or placeholder titles.
func (n *Normalizer) NormalizeTitle(raw string) *string {
	t := strings.TrimSpace(raw)
	if n.titleSuffix != "" {
		t = strings.TrimSpace(strings.TrimSuffix(t, n.titleSuffix))
	}
	if t == "" {
		return nil
	}
	if _, ok := placeholderTitles[strings.ToLower(t)]; ok {
		return nil
	}
	return &t
}
