// Package llm contains the provider-failover adapter used by the chat
// service. Providers live in subpackages and share the Provider interface;
// the Adapter tries them in order and falls back to a canned reply so that
// callers always receive a Result.
package llm
