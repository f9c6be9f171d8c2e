// Package gateway implements the provider, metadata and poster collaborators
// on top of the scraper/metadata gateway HTTP service.
//
// All adapters share one Client, which wraps a resty client and paces every
// request through a token bucket sized by gateway.requests_per_second.
// Transport failures are tagged with provider.ErrTransport and
// services.ErrTransient so import jobs can count them and move on.
package gateway
