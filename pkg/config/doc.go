// Package config provides configuration for strata tools.
//
// A single Config structure groups writer, reader, logging, metrics and
// tracing settings. Files are YAML with ${VAR_NAME} environment
// substitution; values not present in the file keep their defaults.
//
// # Usage
//
//	cfg, err := config.LoadFile("strata.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	comp, _ := cfg.Writer.CompressionType()
//
// A minimal file:
//
//	writer:
//	  compression: zstd
//	  level: ${STRATA_ZSTD_LEVEL}
//	  row_group_size: 65536
//	logging:
//	  level: debug
//	tracing:
//	  enabled: true
package config
