// Command aeye serves or builds the semantic map tile pyramid.
//
// Grounded on cmd/geo/main.go's cobra+humacli shape: an Options struct
// per subcommand, humacli.New for the long-running server, plain cobra
// commands for one-shot work (here, build and spec instead of the
// teacher's gen-client).
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aeyemap/aeye/internal/builder"
	"github.com/aeyemap/aeye/internal/config"
	"github.com/aeyemap/aeye/internal/dataset"
	"github.com/aeyemap/aeye/internal/server"
	"github.com/aeyemap/aeye/internal/vectorstore/duckdbstore"
)

func newServer(opts *config.ServeOptions) (*server.Server, error) {
	store, err := duckdbstore.New(duckdbstore.Config{DataDir: opts.DataDir, DBName: "aeye"})
	if err != nil {
		return nil, err
	}
	return server.New(server.Config{
		Host:        opts.Host,
		Port:        fmt.Sprintf("%d", opts.Port),
		DataDir:     opts.DataDir,
		DatasetFile: opts.DatasetFile,
	}, store, nil)
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *config.ServeOptions) {
		srv, err := newServer(opts)
		if err != nil {
			log.Fatalf("aeye: failed to start: %v", err)
		}

		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			go srv.Updater().Run(ctx)

			addr := fmt.Sprintf("%s:%d", opts.Host, opts.Port)
			displayHost := opts.Host
			if displayHost == "0.0.0.0" {
				displayHost = "localhost"
			}
			baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

			fmt.Println()
			fmt.Println("aeye API server starting...")
			fmt.Printf("  Server:  %s\n", baseURL)
			fmt.Printf("  Data:    %s\n", opts.DataDir)
			fmt.Printf("  Docs:    %s/docs\n", baseURL)
			fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
			fmt.Println()

			if err := http.ListenAndServe(addr, srv); err != nil {
				log.Fatalf("aeye: server error: %v", err)
			}
		})

		hooks.OnStop(func() {
			cancel()
		})
	})

	cli.Root().Use = "aeye"
	cli.Root().Short = "Semantic image-cluster map server and tile builder"
	cli.Root().Version = "0.1.0"

	cli.Root().AddCommand(buildCmd())
	cli.Root().AddCommand(specCmd())

	cli.Run()
}

func buildCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build the tile pyramid for a dataset's Embeddings Collection",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.BuildOptions) {
			store, err := duckdbstore.New(duckdbstore.Config{DataDir: opts.DataDir, DBName: "aeye"})
			if err != nil {
				fmt.Fprintf(os.Stderr, "aeye build: %v\n", err)
				os.Exit(1)
			}

			cfg := builder.Config{
				MaxPerTile:     opts.MaxPerTile,
				NumClusters:    opts.NumClusters,
				InsertSize:     opts.InsertSize,
				LimitForInsert: opts.LimitForInsert,
				MergeClusters:  opts.MergeClusters,
				MergeThreshold: opts.MergeThreshold,
				Images:         opts.Images,
				ImagesDir:      opts.ImagesDir,
			}

			result, err := builder.Build(context.Background(), store, opts.Dataset, cfg)
			if err != nil {
				fmt.Fprintf(os.Stderr, "aeye build: %v\n", err)
				os.Exit(1)
			}

			fmt.Printf("built %q: %d tiles, %d images, max zoom %d\n",
				opts.Dataset, result.TileCount, result.ImageCount, result.MaxZoom)

			registry, err := dataset.Load(opts.DatasetFile)
			if err != nil {
				registry = dataset.New(nil)
			}
			registry.Register(dataset.Dataset{Name: opts.Dataset})
			if err := registry.Save(opts.DatasetFile); err != nil {
				fmt.Fprintf(os.Stderr, "aeye build: warning: failed to update dataset registry: %v\n", err)
			}
		}),
	}
	return cmd
}

func specCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spec",
		Short: "Export the OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *config.ServeOptions) {
			srv, err := newServer(opts)
			if err != nil {
				fmt.Fprintf(os.Stderr, "aeye spec: %v\n", err)
				os.Exit(1)
			}
			spec := srv.OpenAPI()

			useYAML, _ := cmd.Flags().GetBool("yaml")
			var output []byte
			if useYAML {
				output, err = yaml.Marshal(spec)
			} else {
				output, err = json.MarshalIndent(spec, "", "  ")
			}
			if err != nil {
				fmt.Fprintf(os.Stderr, "aeye spec: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(string(output))
		}),
	}
	cmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	return cmd
}
