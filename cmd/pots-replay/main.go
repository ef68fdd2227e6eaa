// Command pots-replay applies a JSON-lines action log to a fresh in-memory
// engine and prints the resulting state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log"
	"os"

	"github.com/R3E-Network/prudent-pots/internal/config"
	"github.com/R3E-Network/prudent-pots/internal/replay"
	"github.com/R3E-Network/prudent-pots/pkg/logger"
)

func main() {
	configPath := flag.String("config", os.Getenv("POTS_CONFIG"), "Path to the YAML configuration file supplying game parameters")
	input := flag.String("in", "-", "Action log to replay, or - for stdin")
	autoAck := flag.Bool("auto-ack", true, "Acknowledge NFT transfers as delivered immediately")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	gameCfg, err := cfg.Game.GameConfig()
	if err != nil {
		log.Fatalf("game config: %v", err)
	}
	lg, err := logger.New(cfg.Logging)
	if err != nil {
		log.Fatalf("configure logging: %v", err)
	}

	var in io.Reader = os.Stdin
	if *input != "-" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open action log: %v", err)
		}
		defer f.Close()
		in = f
	}

	runner := replay.New(gameCfg, cfg.Game.Admin, lg.Named("replay"), replay.WithAutoAck(*autoAck))
	summary, err := runner.Run(context.Background(), in)
	if err != nil {
		log.Fatalf("replay: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		log.Fatalf("write summary: %v", err)
	}
}
