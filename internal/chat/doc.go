// Package chat runs the coaching conversation: it assembles the persona and
// health context into a system prompt, asks the LLM adapter for a reply and
// keeps the per-user transcript.
package chat
