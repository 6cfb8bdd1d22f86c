// Package logger wraps zap with a global sugared logger, context helpers
// (ToContext/FromContext/WithKV) and level parsing. Services pull the logger
// out of the context so run- and machine-scoped fields follow the call chain.
package logger
