// Package config loads the SDK configuration from YAML with environment
// variable overrides. Precedence: defaults, then file, then environment.
// A polling FileWatcher drives reload callbacks for long-running processes.
package config
