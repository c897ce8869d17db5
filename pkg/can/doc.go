// Package can defines the frame type and bus contract shared by all
// transport drivers, plus an in-memory loopback bus for tests and demos.
//
// A Bus delivers every inbound frame twice: into a bounded queue drained
// by Receive, and synchronously to every subscribed handler. Handlers run
// on the driver's receive goroutine and must not block.
package can
