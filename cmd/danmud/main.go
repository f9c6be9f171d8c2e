// Command danmud runs the danmu daemon without the CLI wrapper, for service
// managers. The config path comes from DANMU_CONFIG or the default lookup.
package main

import (
	"context"
	"log"
	"os"

	"danmu/internal/config"
	"danmu/internal/daemonrun"
)

func main() {
	cfg, _, _, err := config.Load(os.Getenv("DANMU_CONFIG"))
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{}); err != nil {
		log.Fatalf("danmud: %v", err)
	}
}
