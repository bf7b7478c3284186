// Package model defines the provider-agnostic generation interface used by
// agent runtimes, plus a MockModel for tests. Concrete adapters for Anthropic
// and OpenAI live in the subpackages.
package model
