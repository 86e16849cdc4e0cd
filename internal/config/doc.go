// Package config provides configuration structures and utilities for
// wikioutline. It holds the global settings built from CLI flags, the YAML
// run list loaded from the configuration file, and the merge of both into
// the concrete settings of each crawl run.
package config
