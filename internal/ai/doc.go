// Package ai implements the upstream chunk producer for the streaming relay,
// backed by an OpenAI-compatible chat-completion API.
package ai
