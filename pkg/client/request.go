package client

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request describes one logical upstream call. It is immutable once built;
// accessors hand out copies.
type Request struct {
	method   string
	endpoint string
	path     string
	query    url.Values
	token    string
}

// NewRequest builds a GET request for path.
//
// endpoint is the route template used as a low-cardinality metrics label
// (e.g. "/v4/teams/{id}"); it defaults to the normalized path. The token is
// sent as X-Auth-Token and never leaves the request otherwise.
func NewRequest(endpoint, path string, query url.Values, token string) Request {
	path = "/" + strings.Trim(path, "/")
	if endpoint == "" {
		endpoint = path
	}
	return Request{
		method:   http.MethodGet,
		endpoint: endpoint,
		path:     path,
		query:    cloneValues(query),
		token:    token,
	}
}

// Method returns the HTTP method.
func (r Request) Method() string { return r.method }

// Endpoint returns the route template label.
func (r Request) Endpoint() string { return r.endpoint }

// Path returns the normalized resource path.
func (r Request) Path() string { return r.path }

// Query returns a copy of the query parameters.
func (r Request) Query() url.Values { return cloneValues(r.query) }

// Target returns path and encoded query, suitable for logs.
// url.Values.Encode sorts keys, so equal requests give equal targets.
func (r Request) Target() string {
	if len(r.query) == 0 {
		return r.path
	}
	return r.path + "?" + r.query.Encode()
}

// URL resolves the request against the upstream base URL.
func (r Request) URL(baseURL string) (string, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", baseURL)
	}
	base.Path = strings.TrimRight(base.Path, "/") + r.path
	base.RawQuery = r.query.Encode()
	return base.String(), nil
}

func cloneValues(v url.Values) url.Values {
	if v == nil {
		return url.Values{}
	}
	out := make(url.Values, len(v))
	for key, values := range v {
		out[key] = append([]string(nil), values...)
	}
	return out
}
