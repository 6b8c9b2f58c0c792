package thor

import (
	"fmt"
	"net/url"
	"strings"
)

// URLFor reverses the named route, substituting params into its path
// template. It returns an error if no route is registered under name or if
// a required path parameter is missing.
func (r *Router) URLFor(name string, params map[string]interface{}) (string, error) {
	r.mu.RLock()
	route, ok := r.named[name]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("thor: no route named %q", name)
	}

	segs, err := splitTemplate(route.PathTemplate)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, s := range segs {
		b.WriteByte('/')
		if s.static != "" {
			b.WriteString(s.static)
			continue
		}
		v, ok := params[s.paramName]
		if !ok {
			return "", fmt.Errorf("thor: missing path parameter %q for route %q", s.paramName, name)
		}
		b.WriteString(url.PathEscape(fmt.Sprint(v)))
	}

	if b.Len() == 0 {
		return "/", nil
	}
	return b.String(), nil
}
