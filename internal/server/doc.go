/*
Package server manages the HTTP listener lifecycle: non-blocking start,
graceful drain with a deadline, and SIGINT/SIGTERM handling.

Manager wraps net/http.Server with an asynchronous error channel so the
caller can watch for serve failures while blocked in WaitForShutdown.
*/
package server
