// Package telemetry provides request tagging for structured logging and metrics.
package telemetry

import (
	"context"
	"net/http"
)

type contextKey string

// requestTagsKey is the context key for the request tags holder.
const requestTagsKey contextKey = "request_tags"

// CacheResult represents how a request's catalog build used the metadata cache.
type CacheResult string

const (
	// CacheHit means every file was served from the metadata cache.
	CacheHit CacheResult = "hit"
	// CacheMiss means at least one file had to be inspected.
	CacheMiss   CacheResult = "miss"
	CacheBypass CacheResult = "bypass"
	CacheNA     CacheResult = "na"
)

// RequestTags holds mutable request metadata that handlers can set for logging.
type RequestTags struct {
	Route       string
	CacheResult CacheResult
	Endpoint    string
	Package     string
}

// InjectTags creates a new request with an empty RequestTags in context.
// Call this in middleware before handlers run.
func InjectTags(r *http.Request) *http.Request {
	tags := &RequestTags{CacheResult: CacheBypass}
	return r.WithContext(context.WithValue(r.Context(), requestTagsKey, tags))
}

// GetTags retrieves the request tags from the request context.
// Returns nil if not in a request context with logging middleware.
func GetTags(r *http.Request) *RequestTags {
	return TagsFromContext(r.Context())
}

// TagsFromContext retrieves the request tags from ctx, or nil.
func TagsFromContext(ctx context.Context) *RequestTags {
	if tags, ok := ctx.Value(requestTagsKey).(*RequestTags); ok {
		return tags
	}
	return nil
}

// SetCacheResult sets the cache result for logging.
func SetCacheResult(r *http.Request, result CacheResult) {
	SetCacheResultContext(r.Context(), result)
}

// SetCacheResultContext sets the cache result on the tags carried by ctx.
// Components below the HTTP layer only see a context, so the catalog builder
// reports through this.
func SetCacheResultContext(ctx context.Context, result CacheResult) {
	if tags := TagsFromContext(ctx); tags != nil {
		tags.CacheResult = result
	}
}

// SetRoute sets the route group ("simple", "api", "packages", ...).
func SetRoute(r *http.Request, route string) {
	if tags := GetTags(r); tags != nil {
		tags.Route = route
	}
}

// SetEndpoint sets the endpoint type for logging.
func SetEndpoint(r *http.Request, endpoint string) {
	if tags := GetTags(r); tags != nil {
		tags.Endpoint = endpoint
	}
}

// SetPackage records the package a request is about. Logged only, never used
// as a metric attribute.
func SetPackage(r *http.Request, name string) {
	if tags := GetTags(r); tags != nil {
		tags.Package = name
	}
}
