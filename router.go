package thor

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// WebSocketMethod is the reserved pseudo-method under which WebSocket routes
// are stored in the router tree.
const WebSocketMethod = "WEBSOCKET"

// paramType identifies the conversion and matching rule for a path
// parameter, per the grammar "{name}" (defaults to str) or "{name:type}".
type paramType string

// Supported path-parameter types.
const (
	paramStr  paramType = "str"
	paramInt  paramType = "int"
	paramPath paramType = "path"
	paramUUID paramType = "uuid"
	paramSlug paramType = "slug"
)

var paramPatterns = map[paramType]*regexp.Regexp{
	paramInt:  regexp.MustCompile(`^\d+$`),
	paramStr:  regexp.MustCompile(`^[^/]+$`),
	paramPath: regexp.MustCompile(`^.+$`),
	paramUUID: regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`),
	paramSlug: regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`),
}

func parseParamType(s string) (paramType, error) {
	if s == "" {
		return paramStr, nil
	}
	pt := paramType(s)
	if _, ok := paramPatterns[pt]; !ok {
		return "", fmt.Errorf("unknown path parameter type %q", s)
	}
	return pt, nil
}

// Route is an immutable, registered route. It is created once at
// registration and lives for the process lifetime.
type Route struct {
	PathTemplate string
	Methods      map[string]bool
	ParamTypes   map[string]paramType
	Name         string
	Handler      Handler
}

// segment is one path-template segment after splitting on "/".
type segment struct {
	static    string // "" if this is a parametric segment
	paramName string
	paramType paramType
}

// node is a radix-tree node keyed by path segment, per spec §3: a map of
// static children plus at most one parametric child.
type node struct {
	staticChildren map[string]*node
	paramChild     *node
	paramName      string
	paramType      paramType
	routes         map[string]*Route // keyed by HTTP method, including WebSocketMethod
}

func newNode() *node {
	return &node{staticChildren: map[string]*node{}}
}

// Router resolves (path, method) to a Route in time proportional to the
// number of path segments, via a radix tree over path segments.
//
// A Router may itself be mounted as a sub-router of another Router with a
// path prefix (see Mount); mounting marks the parent tree dirty, and the
// next Lookup rebuilds it from the flattened route list.
type Router struct {
	mu     sync.RWMutex
	root   *node
	routes []*Route
	named  map[string]*Route
	dirty  bool
}

// NewRouter returns an empty Router.
func NewRouter() *Router {
	return &Router{root: newNode(), named: map[string]*Route{}}
}

// Handle registers a route for the given methods and path template. path
// must start with "/". Segments of the form "{name}" or "{name:type}" are
// parametric; all others are static. Panics on a malformed template, a
// duplicate route, or an unknown parameter type — these are registration-
// time programmer errors.
func (r *Router) Handle(methods []string, path string, name string, h Handler) *Route {
	if path == "" || path[0] != '/' {
		panic("thor: route path must start with /")
	}

	segs, err := splitTemplate(path)
	if err != nil {
		panic("thor: " + err.Error())
	}

	route := &Route{
		PathTemplate: path,
		Methods:      map[string]bool{},
		ParamTypes:   map[string]paramType{},
		Name:         name,
		Handler:      h,
	}
	for _, m := range methods {
		route.Methods[strings.ToUpper(m)] = true
	}
	for _, s := range segs {
		if s.static == "" {
			route.ParamTypes[s.paramName] = s.paramType
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.routes {
		if existing.PathTemplate == path {
			for m := range route.Methods {
				if existing.Methods[m] {
					panic(fmt.Sprintf("thor: route [%s %s] is already registered", m, path))
				}
			}
		}
	}

	r.routes = append(r.routes, route)
	if name != "" {
		if _, exists := r.named[name]; exists {
			panic(fmt.Sprintf("thor: route name %q is already registered", name))
		}
		r.named[name] = route
	}

	r.insert(segs, route)

	return route
}

// Mount grafts sub's routes onto r under prefix and marks r dirty so the
// next Lookup rebuilds the merged tree. Per spec §4.3, direct registration
// on the root router (Handle) inserts incrementally; mounting a sub-router
// always triggers a rebuild.
func (r *Router) Mount(prefix string, sub *Router) {
	sub.mu.RLock()
	subRoutes := make([]*Route, len(sub.routes))
	copy(subRoutes, sub.routes)
	sub.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	prefix = strings.TrimSuffix(prefix, "/")
	for _, sr := range subRoutes {
		merged := &Route{
			PathTemplate: prefix + sr.PathTemplate,
			Methods:      sr.Methods,
			ParamTypes:   sr.ParamTypes,
			Name:         sr.Name,
			Handler:      sr.Handler,
		}
		r.routes = append(r.routes, merged)
		if merged.Name != "" {
			r.named[merged.Name] = merged
		}
	}
	r.dirty = true
}

// rebuild reconstructs the tree from the flattened route list. Caller must
// hold r.mu for writing.
func (r *Router) rebuild() {
	r.root = newNode()
	for _, route := range r.routes {
		segs, err := splitTemplate(route.PathTemplate)
		if err != nil {
			panic("thor: " + err.Error())
		}
		r.insert(segs, route)
	}
	r.dirty = false
}

// insert walks/creates nodes for segs and stores route at the terminal
// node. Caller must hold r.mu for writing.
func (r *Router) insert(segs []segment, route *Route) {
	n := r.root
	for _, s := range segs {
		if s.static != "" {
			child, ok := n.staticChildren[s.static]
			if !ok {
				child = newNode()
				n.staticChildren[s.static] = child
			}
			n = child
		} else {
			if n.paramChild == nil {
				n.paramChild = newNode()
				n.paramChild.paramName = s.paramName
				n.paramChild.paramType = s.paramType
			}
			n = n.paramChild
		}
	}
	if n.routes == nil {
		n.routes = map[string]*Route{}
	}
	for m := range route.Methods {
		n.routes[m] = route
	}
}

// frame is one entry of the explicit DFS stack used by Lookup. Both the
// static and the parametric branch at a node are tried (static first) when
// both exist, per spec §4.3's "two-branch DFS" rationale.
type frame struct {
	node        *node
	segIdx      int
	params      map[string]interface{}
	triedStatic bool
	triedParam  bool
}

// LookupResult is the outcome of a route resolution.
type LookupResult struct {
	Route            *Route
	Params           map[string]interface{}
	MethodNotAllowed bool
}

// Lookup resolves method and path to a route. If at least one terminal
// route matched the path but none matched method, MethodNotAllowed is set;
// otherwise Route is nil (not-found).
func (r *Router) Lookup(method, path string) LookupResult {
	r.mu.RLock()
	if r.dirty {
		r.mu.RUnlock()
		r.mu.Lock()
		if r.dirty {
			r.rebuild()
		}
		r.mu.Unlock()
		r.mu.RLock()
	}
	defer r.mu.RUnlock()

	segs := splitPath(path)

	stack := []*frame{{node: r.root, segIdx: 0, params: map[string]interface{}{}}}

	var methodMismatch bool

	for len(stack) > 0 {
		top := stack[len(stack)-1]

		if top.segIdx == len(segs) {
			stack = stack[:len(stack)-1]
			if top.node.routes != nil {
				if route, ok := top.node.routes[method]; ok {
					return LookupResult{Route: route, Params: top.params}
				}
				if len(top.node.routes) > 0 {
					methodMismatch = true
				}
			}
			continue
		}

		seg := segs[top.segIdx]
		pushed := false

		if !top.triedStatic {
			top.triedStatic = true
			if child, ok := top.node.staticChildren[seg]; ok {
				stack = append(stack, &frame{
					node:   child,
					segIdx: top.segIdx + 1,
					params: cloneParams(top.params),
				})
				pushed = true
			}
		}

		if !pushed && !top.triedParam {
			top.triedParam = true
			if pc := top.node.paramChild; pc != nil && matchParam(pc.paramType, seg) {
				params := cloneParams(top.params)
				params[pc.paramName] = convertParam(pc.paramType, seg)
				stack = append(stack, &frame{
					node:   pc,
					segIdx: top.segIdx + 1,
					params: params,
				})
				pushed = true
			}
		}

		if !pushed && top.triedStatic && top.triedParam {
			stack = stack[:len(stack)-1]
		}
	}

	if methodMismatch {
		return LookupResult{MethodNotAllowed: true}
	}
	return LookupResult{}
}

func cloneParams(p map[string]interface{}) map[string]interface{} {
	c := make(map[string]interface{}, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}

func matchParam(pt paramType, seg string) bool {
	re, ok := paramPatterns[pt]
	if !ok {
		return false
	}
	return re.MatchString(seg)
}

func convertParam(pt paramType, seg string) interface{} {
	if pt == paramInt {
		n, err := strconv.Atoi(seg)
		if err != nil {
			return seg
		}
		return n
	}
	return seg
}

// splitPath splits a request path on "/", skipping empty segments (so that
// repeated or trailing slashes are tolerated).
func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// splitTemplate splits a route path template into segments, recognizing
// "{name}" and "{name:type}" parametric segments.
func splitTemplate(path string) ([]segment, error) {
	raw := strings.Split(path, "/")
	segs := make([]segment, 0, len(raw))
	seen := map[string]bool{}

	for _, p := range raw {
		if p == "" {
			continue
		}
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			inner := p[1 : len(p)-1]
			name, typ := inner, ""
			if idx := strings.IndexByte(inner, ':'); idx >= 0 {
				name, typ = inner[:idx], inner[idx+1:]
			}
			if name == "" {
				return nil, fmt.Errorf("empty path parameter name in %q", path)
			}
			if seen[name] {
				return nil, fmt.Errorf("duplicate path parameter name %q in %q", name, path)
			}
			seen[name] = true
			pt, err := parseParamType(typ)
			if err != nil {
				return nil, err
			}
			segs = append(segs, segment{paramName: name, paramType: pt})
		} else {
			segs = append(segs, segment{static: p})
		}
	}

	return segs, nil
}
