package httpserver

import "time"

// ShutdownTimeout controls how long to wait for in-flight requests and
// background workers during graceful shutdowns.
var ShutdownTimeout = 20 * time.Second
