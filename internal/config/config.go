// Package config defines the server's CLI/env-var surface, in the same
// struct-with-tags idiom cmd/geo/main.go used for its Options type.
package config

// ServeOptions configures the `aeye serve` subcommand.
type ServeOptions struct {
	Host        string `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int    `doc:"Port to listen on" short:"p" default:"8086"`
	DataDir     string `doc:"Directory for the DuckDB file and built datasets" default:".data"`
	DatasetFile string `doc:"Path to the dataset registry YAML file" default:".data/datasets.yaml"`
	MetricsPort int    `doc:"Not read by the server; Prometheus metrics are served at /metrics on the API port" default:"9090"`
}

// BuildOptions configures the `aeye build` subcommand, the CLI surface
// of the Tile Builder.
type BuildOptions struct {
	Dataset       string  `doc:"Dataset name to build" required:"true" short:"d"`
	DataDir       string  `doc:"Directory for the DuckDB file" default:".data"`
	DatasetFile   string  `doc:"Path to the dataset registry YAML file to update on success" default:".data/datasets.yaml"`
	MaxPerTile    int     `doc:"Maximum representatives per tile before splitting" default:"30"`
	NumClusters   int     `doc:"Number of clusters per overflowing tile" default:"30"`
	InsertSize    int     `doc:"Row batch size for chunked inserts" default:"500"`
	LimitForInsert int    `doc:"Soft bound on pending tiles before a flush+evict pass" default:"1000000"`
	MergeClusters bool    `doc:"Enable the post-pass that groups representatives of adjacent tiles scoring at least MergeThreshold" default:"false"`
	MergeThreshold float64 `doc:"Layout-proximity score 1/(1+d^2) at or above which representatives of adjacent tiles share a merge group" default:"0.8"`
	Images        bool    `doc:"Write a debug PNG composite per tile while building" default:"false"`
	ImagesDir     string  `doc:"Directory to write debug tile composites to" default:".data/debug/tiles"`
}
