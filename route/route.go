// Package route models REST endpoint identities.
//
// A Route is a method plus a path template such as GET /users/{id}. Compiling
// a route binds its placeholders to concrete values and yields a Compiled
// route, which is the identity used for request execution, rate-limit
// bucketing, and metrics labeling. Metrics backends should label by
// Template rather than Path to keep label cardinality bounded.
package route

import (
	"context"
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
)

// Route is an endpoint definition: an HTTP method and a path template.
// Placeholders use curly braces: /users/{id}/posts/{postID}.
type Route struct {
	method   string
	template string
}

// New creates a route for the given method and path template.
func New(method, template string) Route {
	if !strings.HasPrefix(template, "/") {
		template = "/" + template
	}
	return Route{method: strings.ToUpper(method), template: template}
}

// Get is shorthand for New(http.MethodGet, template).
func Get(template string) Route { return New(http.MethodGet, template) }

// Post is shorthand for New(http.MethodPost, template).
func Post(template string) Route { return New(http.MethodPost, template) }

// Put is shorthand for New(http.MethodPut, template).
func Put(template string) Route { return New(http.MethodPut, template) }

// Delete is shorthand for New(http.MethodDelete, template).
func Delete(template string) Route { return New(http.MethodDelete, template) }

// Method returns the HTTP method of the route.
func (r Route) Method() string { return r.method }

// Template returns the path template with placeholders intact.
func (r Route) Template() string { return r.template }

// ParamCount returns the number of placeholders in the template.
func (r Route) ParamCount() int {
	return strings.Count(r.template, "{")
}

// Compile binds the template placeholders to the given values, in order.
// The number of values must match the number of placeholders.
func (r Route) Compile(params ...string) (*Compiled, error) {
	want := r.ParamCount()
	if len(params) != want {
		return nil, errors.Newf("route %s %s expects %d params, got %d",
			r.method, r.template, want, len(params))
	}

	path := r.template
	for _, p := range params {
		open := strings.IndexByte(path, '{')
		end := strings.IndexByte(path, '}')
		if open < 0 || end < open {
			return nil, errors.Newf("malformed template %q", r.template)
		}
		path = path[:open] + p + path[end+1:]
	}

	return &Compiled{route: r, path: path}, nil
}

// MustCompile is like Compile but panics on error. Intended for routes with
// no placeholders or statically known parameters.
func (r Route) MustCompile(params ...string) *Compiled {
	c, err := r.Compile(params...)
	if err != nil {
		panic(err)
	}
	return c
}

// Compiled is a route with all placeholders bound. Compiled values are
// immutable; all accessors are pure reads. Many requests, and therefore many
// metrics, may share one Compiled value.
type Compiled struct {
	route Route
	path  string
}

// Method returns the HTTP method of the underlying route.
func (c *Compiled) Method() string { return c.route.method }

// Template returns the path template of the underlying route.
func (c *Compiled) Template() string { return c.route.template }

// Path returns the concrete request path with parameters substituted.
func (c *Compiled) Path() string { return c.path }

// BucketKey identifies the rate-limit bucket for this route. Requests that
// share a method and template share a bucket.
func (c *Compiled) BucketKey() string {
	return c.route.method + " " + c.route.template
}

func (c *Compiled) String() string {
	return c.route.method + " " + c.path
}

type contextKey struct{}

// NewContext returns a context carrying the compiled route, for transport
// layers that need the route identity of the request they are handling.
func NewContext(ctx context.Context, c *Compiled) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the compiled route carried by ctx, or nil.
func FromContext(ctx context.Context) *Compiled {
	c, _ := ctx.Value(contextKey{}).(*Compiled)
	return c
}
