// Package config loads Trinity's configuration.
//
// # Sources
//
// Values are layered in increasing order of precedence:
//
//  1. Built-in defaults (Default).
//  2. trinity.yaml in the working directory, or the file passed with
//     --config. The document is checked against a closed CUE schema before
//     it is decoded, so misspelled keys are reported with file, line and
//     column.
//  3. A .env file, read with godotenv. Process variables win over it.
//  4. Environment variables such as NEON_API_KEY, RAILWAY_TOKEN,
//     VERCEL_TOKEN, VERCEL_TEAM_ID and TRINITY_LEDGER_PATH.
//
// The merged result is checked with go-playground/validator.
//
// # Credentials
//
// Credentials are not required to load a configuration: dry runs and
// classification work without them. Callers that talk to a platform call
// RequireCredentials, which returns an engine configuration error naming
// every missing variable.
//
// # Example
//
//	cfg, err := config.Load(config.LoadOptions{Path: flagConfig})
//	if err != nil {
//	    return err
//	}
//	if err := cfg.RequireCredentials(); err != nil {
//	    return err
//	}
package config
