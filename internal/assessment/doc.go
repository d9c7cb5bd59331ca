// Package assessment implements the ten-question IBS self-assessment and the
// rule-based subtype classification derived from it.
package assessment
