// Package health stores daily symptom logs and derives the aggregate views
// used elsewhere: the rolling health context injected into chat prompts and
// the seven-day summary sent by email.
package health
