// Package config defines configuration for the partfetch CLI.
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (PARTFETCH_ prefix)
//   - YAML configuration file
//
// Later sources win: the CLI loads the file (or Default), applies the
// environment, then merges flags.
//
// # File format
//
//	endpoint: s3://archive?region=eu-west-1
//	principal: hadoop
//	block_size: 128MiB
//	buffer_size: 1MiB
//	legacy_block_count: false
//	replication: 3
//	progress: true
//	retry:
//	  attempts: 5
//	  backoff: 1s
//	  max_backoff: 30s
package config
