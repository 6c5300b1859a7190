// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"log"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "lookbook",
		Usage: "Hybrid text and image search over a fashion catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
				EnvVars: []string{"LOOKBOOK_LOG_LEVEL"},
			},
			&cli.StringFlag{
				Name:     "db",
				Aliases:  []string{"d"},
				Usage:    "Path to BadgerDB database directory",
				Required: true,
				EnvVars:  []string{"LOOKBOOK_DB"},
			},
			&cli.StringFlag{
				Name:    "embedding-host",
				Usage:   "Text embedding service host URL",
				Value:   "http://localhost:11434/v1",
				EnvVars: []string{"LOOKBOOK_EMBEDDING_HOST"},
			},
			&cli.StringFlag{
				Name:    "clip-host",
				Usage:   "CLIP embedding service host URL",
				Value:   "http://localhost:8000/v1",
				EnvVars: []string{"LOOKBOOK_CLIP_HOST"},
			},
			&cli.StringFlag{
				Name:    "classifier-host",
				Usage:   "Chat service host URL for filter extraction (defaults to embedding-host)",
				EnvVars: []string{"LOOKBOOK_CLASSIFIER_HOST"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "Bearer token for the AI services",
				Value:   "none",
				EnvVars: []string{"LOOKBOOK_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "semantic-model",
				Usage:   "Sentence encoder model name",
				Value:   "all-minilm",
				EnvVars: []string{"LOOKBOOK_SEMANTIC_MODEL"},
			},
			&cli.StringFlag{
				Name:    "clip-text-model",
				Usage:   "CLIP text tower model name",
				Value:   "ViT-B-32",
				EnvVars: []string{"LOOKBOOK_CLIP_TEXT_MODEL"},
			},
			&cli.StringFlag{
				Name:    "clip-image-model",
				Usage:   "CLIP image tower model name",
				Value:   "ViT-B-32",
				EnvVars: []string{"LOOKBOOK_CLIP_IMAGE_MODEL"},
			},
			&cli.StringFlag{
				Name:    "classifier-model",
				Usage:   "Chat model for filter extraction (empty disables extraction)",
				EnvVars: []string{"LOOKBOOK_CLASSIFIER_MODEL"},
			},
			&cli.IntFlag{
				Name:    "embed-batch-size",
				Usage:   "Maximum inputs per embedding request",
				Value:   256,
				EnvVars: []string{"LOOKBOOK_EMBED_BATCH_SIZE"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "import",
				Usage:  "Import catalog items from a JSON-lines file",
				Action: importCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "JSON-lines file of items (- for stdin)",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of items per write",
						Value: 500,
					},
				},
			},
			{
				Name:   "backfill",
				Usage:  "Compute missing embeddings for catalog items",
				Action: backfillCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "image-dir",
						Usage:    "Directory holding <sku>/image1.jpeg and <sku>/image2.jpeg",
						Required: true,
						EnvVars:  []string{"LOOKBOOK_IMAGE_DIR"},
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of items to process in each batch",
						Value: 512,
					},
					&cli.IntFlag{
						Name:  "commit-every",
						Usage: "Commit staged vectors every N batches",
						Value: 5,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Concurrent embedding jobs per batch",
						Value: 3,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
					&cli.Float64Flag{
						Name:  "rps",
						Usage: "Throttle embedding requests per second (0 disables)",
					},
					natsFlag(),
					qdrantAddrFlag(),
					collectionFlag(),
				},
			},
			{
				Name:   "map-colors",
				Usage:  "Rebuild the color mapping table from catalog colors",
				Action: mapColorsCommand,
				Flags:  []cli.Flag{natsFlag()},
			},
			{
				Name:   "search",
				Usage:  "Search the catalog by text or image",
				Action: searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "text", Aliases: []string{"t"}, Usage: "Text query"},
					&cli.StringFlag{Name: "image", Aliases: []string{"i"}, Usage: "Path to a query image (takes precedence over text)"},
					&cli.StringFlag{Name: "brand", Usage: "Brand filter"},
					&cli.StringFlag{Name: "category", Usage: "Category filter"},
					&cli.StringFlag{Name: "color", Usage: "Color filter"},
					&cli.Float64Flag{Name: "min-price", Usage: "Minimum price"},
					&cli.Float64Flag{Name: "max-price", Usage: "Maximum price"},
					&cli.IntFlag{Name: "k", Usage: "Number of results", Value: 9},
					&cli.Float64Flag{Name: "clip-weight", Usage: "CLIP text weight", Value: 0.3},
					&cli.Float64Flag{Name: "semantic-weight", Usage: "Sentence encoder weight", Value: 0.7},
					&cli.BoolFlag{Name: "extract", Usage: "Extract filters from the text query"},
					qdrantAddrFlag(),
					collectionFlag(),
				},
			},
			{
				Name:   "sync-index",
				Usage:  "Mirror every fully embedded item into Qdrant",
				Action: syncIndexCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "qdrant-addr",
						Usage:    "Qdrant gRPC address",
						Required: true,
						EnvVars:  []string{"LOOKBOOK_QDRANT_ADDR"},
					},
					collectionFlag(),
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Rows per upsert",
						Value: 256,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print catalog counts",
				Action: statsCommand,
			},
		},
	}
}

func natsFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "nats-url",
		Usage:   "Publish domain events to this NATS server",
		EnvVars: []string{"LOOKBOOK_NATS_URL"},
	}
}

func qdrantAddrFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "qdrant-addr",
		Usage:   "Qdrant gRPC address of the mirror index",
		EnvVars: []string{"LOOKBOOK_QDRANT_ADDR"},
	}
}

func collectionFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "collection",
		Usage:   "Qdrant collection name",
		Value:   "lookbook",
		EnvVars: []string{"LOOKBOOK_COLLECTION"},
	}
}
