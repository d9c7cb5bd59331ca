// Package reminder keeps per-user email reminder settings, publishes mail
// jobs to a queue (daily reminders from a minute-resolution scheduler,
// welcome and weekly-summary mails on demand) and consumes them with a pool
// of workers that render and send the messages.
package reminder
