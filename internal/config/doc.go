// Package config provides configuration management for the custody
// orchestrator.
//
// Configuration is loaded from environment variables using the env package,
// after an optional .env file has been applied with godotenv. All values
// have defaults suitable for development except the identity of the
// administrator and the API secret.
//
// A YAML genesis file seeds the development ledger and the simulated
// integrations; see LoadGenesis.
//
// Example usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("HTTP server will listen on %s\n", cfg.GetHTTPAddr())
package config
