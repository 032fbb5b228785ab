package realtime

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrUnsupportedScheme is returned for origins that are neither http nor https.
var ErrUnsupportedScheme = errors.New("unsupported origin scheme")

// EndpointFromOrigin derives the push endpoint from the page origin: same host,
// fixed path, wss when the page is served over https and ws otherwise.
func EndpointFromOrigin(origin, path string) (string, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("parse origin %q: %w", origin, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("origin %q has no host", origin)
	}

	var scheme string
	switch u.Scheme {
	case "https":
		scheme = "wss"
	case "http":
		scheme = "ws"
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}

	if path == "" || path[0] != '/' {
		path = "/" + path
	}
	endpoint := url.URL{Scheme: scheme, Host: u.Host, Path: path}
	return endpoint.String(), nil
}
