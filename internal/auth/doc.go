// Package auth authenticates API callers. In production it verifies Firebase
// ID tokens against Google's published signing certificates; in debug mode a
// caller may instead identify itself with the X-Debug-UID header.
package auth
