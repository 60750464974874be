package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/distfourier/distfourier/distributedfft"
	"github.com/distfourier/distfourier/fourier"
	"github.com/distfourier/distfourier/iterativefft"
	"github.com/distfourier/distfourier/recursivefft"
	"github.com/distfourier/distfourier/signalio"
)

var (
	inverse   = flag.Bool("inverse", false, "compute the inverse transform")
	out       = flag.String("out", "output.txt", "output file (coordinator only)")
	ranks     = flag.Int("ranks", 4, "in-process ranks for the parallel engine")
	workers   = flag.Int("workers", 0, "worker goroutines per rank (0 = NumCPU)")
	transport = flag.String("transport", "channel", "parallel transport: channel or websocket")
	wsRank    = flag.Int("rank", 0, "this process's rank (websocket transport)")
	wsSize    = flag.Int("size", 0, "world size (websocket transport)")
	wsPeers   = flag.String("peers", "", "comma-separated host:port per rank (websocket transport)")
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: fourier [flags] <iterative|recursive|parallel|all> <input-file>")
	flag.PrintDefaults()
	os.Exit(1)
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
	}

	method := strings.ToLower(args[0])
	switch method {
	case "iterative", "recursive", "parallel", "all":
	default:
		usage()
	}

	if method == "parallel" && *transport == "websocket" {
		runWebSocketRank(args)
		return
	}
	if *transport != "channel" {
		usage()
	}
	if len(args) != 2 {
		usage()
	}

	signal, err := signalio.ReadSignal(args[1])
	if err != nil {
		log.Fatal(err)
	}

	type entry struct {
		name   string
		engine fourier.Engine
	}
	var entries []entry
	if method == "iterative" || method == "all" {
		entries = append(entries, entry{"iterative", iterativefft.New()})
	}
	if method == "recursive" || method == "all" {
		entries = append(entries, entry{"recursive", recursivefft.New()})
	}
	if method == "parallel" || method == "all" {
		cluster := distributedfft.NewCluster(distributedfft.ClusterConfig{Ranks: *ranks, Workers: *workers})
		entries = append(entries, entry{"parallel", cluster})
	}

	for _, en := range entries {
		en.engine.Load(signal)
		if *inverse {
			err = en.engine.ReverseCompute()
		} else {
			err = en.engine.Compute()
		}
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%s FFT duration: %v\n", en.name, en.engine.LastDuration())

		path := *out
		if len(entries) > 1 {
			path = withSuffix(path, en.name)
		}
		if err := writeResult(path, en.engine.Output()); err != nil {
			log.Fatal(err)
		}
	}
}

// runWebSocketRank executes one rank of a multi-process world. Every rank
// runs the same command with its own -rank; only the coordinator names an
// input file and writes output.
func runWebSocketRank(args []string) {
	peers := strings.Split(*wsPeers, ",")
	if *wsSize < 1 || len(peers) != *wsSize {
		usage()
	}

	comm, err := distributedfft.NewWebSocketComm(distributedfft.WSConfig{
		Rank:  *wsRank,
		Size:  *wsSize,
		Peers: peers,
	})
	if err != nil {
		log.Fatal(err)
	}
	defer comm.Close()

	engine := distributedfft.New(comm, distributedfft.Config{Workers: *workers})
	if *wsRank == distributedfft.Coordinator {
		if len(args) != 2 {
			usage()
		}
		signal, err := signalio.ReadSignal(args[1])
		if err != nil {
			log.Fatal(err)
		}
		engine.Load(signal)
	}

	if *inverse {
		err = engine.ReverseCompute()
	} else {
		err = engine.Compute()
	}
	if err != nil {
		log.Fatal(err)
	}

	if *wsRank == distributedfft.Coordinator {
		fmt.Printf("parallel FFT duration: %v\n", engine.LastDuration())
		if err := writeResult(*out, engine.Output()); err != nil {
			log.Fatal(err)
		}
	}
}

func writeResult(path string, data []complex128) error {
	if *inverse {
		return signalio.WriteSignal(path, data)
	}
	return signalio.WriteSpectrum(path, data)
}

func withSuffix(path, name string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_" + name + ext
}
