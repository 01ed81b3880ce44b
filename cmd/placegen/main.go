// placegen 生成随机合法布阵并写入 bbolt 数据集
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"time"

	"go.uber.org/zap"

	"battl3ship/game"
	"battl3ship/placement"
)

func main() {
	var (
		dbPath  string
		target  int
		workers int
		seed    int64
		show    bool
	)
	flag.StringVar(&dbPath, "db", "placements.db", "path to the placement database")
	flag.IntVar(&target, "count", 10000, "generate until the database holds at least this many layouts")
	flag.IntVar(&workers, "workers", runtime.NumCPU(), "parallel generators")
	flag.Int64Var(&seed, "seed", time.Now().UnixNano(), "random seed")
	flag.BoolVar(&show, "show", false, "print one random stored layout and exit")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	rules := game.DefaultRules()
	store, err := placement.Open(dbPath, rules)
	if err != nil {
		log.Fatalf("open: %v", err)
	}
	defer store.Close()

	if show {
		boats, err := store.Random(rand.New(rand.NewSource(seed)))
		if err != nil {
			log.Fatalf("random: %v", err)
		}
		board := game.NewBoard(rules)
		if err := board.Commit(boats); err != nil {
			log.Fatalf("commit: %v", err)
		}
		fmt.Println(board)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	start := time.Now()
	added, err := store.Fill(ctx, target, workers, seed)
	total, _ := store.Count()
	log.Infof("added %d layouts in %s, %d stored", added, time.Since(start).Round(time.Millisecond), total)
	if err != nil {
		log.Fatalf("fill: %v", err)
	}
}
