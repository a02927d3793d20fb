// Package observability provides the structured logger shared by the
// decision service, the listener and the HTTP layer.
package observability
