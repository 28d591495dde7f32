// Package server hosts the Fiber HTTP service and the shared upstream HTTP
// client. It builds the application with recovery and request-ID middleware
// and a JSON error handler; endpoint registration lives in server/routes so
// the image resolver can be injected (or faked in tests) independently of
// the app bootstrap. Keep exports narrow and accept explicit dependencies.
package server
