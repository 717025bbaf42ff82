// Package config handles loading and validating the command delivery
// service configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with GRAYLOGIC_* environment variables
//   - Expanding ${VAR} references in destination credentials
//   - Validation of required fields
//
// The commands section declares the tenant's destinations, the router
// strategy, the target resolution policy and the consumer pool size. It is
// parsed once at startup and handed to the destinations builder.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Tenant.ID)
package config
