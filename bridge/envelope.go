// Package bridge is the correlation protocol between the side that drives an
// interactive session and the side that can see framework internals.
//
// Neither side holds references into the other. The session marks the
// target element with a reserved attribute, sends a Request carrying a fresh
// correlation id, and later matches the Response by that id. The Broker
// answers requests against a page.Document.
package bridge

import "errors"

// Kind selects the lookup a request asks for.
type Kind string

const (
	KindPick  Kind = "pick"
	KindHover Kind = "hover"
	KindProbe Kind = "probe"
)

// Marker attributes used to hand element identity across the boundary. At
// most one element carries each marker at any instant.
const (
	PickMarker  = "data-compick-pick"
	HoverMarker = "data-compick-hover"
)

// MarkerFor returns the marker attribute for kind, "" for probe.
func MarkerFor(kind Kind) string {
	switch kind {
	case KindPick:
		return PickMarker
	case KindHover:
		return HoverMarker
	}
	return ""
}

// Request is the wire form of a lookup request. Depth truncates the ancestry
// to the entries nearest the target; 0 means unlimited.
type Request struct {
	Kind          Kind   `json:"kind"`
	CorrelationID string `json:"correlationId"`
	Depth         int    `json:"depth,omitempty"`
}

// Response answers the request carrying the same CorrelationID.
type Response struct {
	Kind          Kind     `json:"kind,omitempty"`
	CorrelationID string   `json:"correlationId"`
	Framework     string   `json:"framework,omitempty"`
	Components    []string `json:"components,omitempty"`
	Path          string   `json:"path,omitempty"`
	Available     bool     `json:"available,omitempty"`
	Error         string   `json:"error,omitempty"`
}

// Pick failures reported to the user.
var (
	ErrNoMarkedElement = errors.New("no element marked for picking")
	ErrNoFramework     = errors.New("no framework detected — is React, Vue, Angular, or Svelte running on this page?")
	ErrNoComponents    = errors.New("no components found in ancestor tree")
)

// ErrClosed is returned by transports after Close.
var ErrClosed = errors.New("bridge: transport closed")
