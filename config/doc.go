// Package config provides application configuration management.
//
// The config package handles loading and validation of the application's
// configuration from YAML files, environment variables prefixed with
// CELLBOX_ and an optional .env file. It covers the server transport,
// the execution engine limits, the namespace lifecycle strategy, the
// notebook store backend and logging.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Session strategy: %s\n", cfg.Session.Strategy)
package config
