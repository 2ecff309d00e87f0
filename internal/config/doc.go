// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable
// interpolation. A handful of deployment knobs can also be overridden with
// SHARDGATE_* variables (see EnvOverrides), which win over the file.
package config
