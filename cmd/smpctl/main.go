package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sync"

	"github.com/danmuck/smpctl/internal/groups/osmgmt"
	"github.com/danmuck/smpctl/internal/logging"
	"github.com/danmuck/smpctl/internal/smp"
	"github.com/danmuck/smpctl/internal/transport"
	"github.com/danmuck/smpctl/internal/transport/loopback"
	"github.com/danmuck/smpctl/internal/transport/udp"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "smpctl: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to smpctl TOML config")
	echoMsg := flag.String("echo", "hello", "message for the echo command")
	flag.Parse()

	logging.ConfigureRuntime()
	log := logging.New("smpctl")

	cfg := defaultClientConfig()
	if *configPath != "" {
		loaded, err := loadClientConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	tr, err := openTransport(cfg)
	if err != nil {
		return err
	}
	defer tr.Close()

	if cfg.MTU != 0 {
		if err := tr.SetMTU(cfg.MTU); err != nil {
			if !errors.Is(err, transport.ErrMTUUnchanged) {
				return err
			}
			log.Debug().Int("mtu", cfg.MTU).Msg("mtu already current")
		}
	}
	log.Info().
		Str("addr", cfg.Addr).
		Str("scheme", string(cfg.Scheme)).
		Int("mtu", tr.MTU()).
		Msg("connected")

	txn := smp.NewTxnManager(tr, logging.New("txn"))
	osc := osmgmt.NewClient(txn, cfg.Timeout)

	var wg sync.WaitGroup
	var echoErr, statsErr error

	wg.Add(1)
	err = osc.Echo(*echoMsg, func(reply string, err error) {
		defer wg.Done()
		if err != nil {
			echoErr = err
			return
		}
		fmt.Printf("echo: %s\n", reply)
	})
	if err != nil {
		return err
	}

	wg.Add(1)
	err = osc.TaskStats(func(tasks map[string]osmgmt.TaskStat, err error) {
		defer wg.Done()
		if err != nil {
			statsErr = err
			return
		}
		for name, ts := range tasks {
			fmt.Printf("task %-16s prio=%d runtime=%d stack=%d/%d\n",
				name, ts.Priority, ts.Runtime, ts.StackUsed, ts.StackSize)
		}
	})
	if err != nil {
		return err
	}

	wg.Wait()
	if echoErr != nil {
		return fmt.Errorf("echo: %w", echoErr)
	}
	if statsErr != nil {
		return fmt.Errorf("taskstats: %w", statsErr)
	}
	return nil
}

func openTransport(cfg clientConfig) (transport.Transport, error) {
	switch cfg.Scheme {
	case transport.SchemeUDP:
		return udp.Dial(cfg.Addr, logging.New("udp"))
	case transport.SchemeLoop:
		return loopback.New(transport.SchemeLoop, fakeDevice), nil
	default:
		return nil, fmt.Errorf("scheme %q has no transport in this build", cfg.Scheme)
	}
}

// fakeDevice backs the loop scheme so the CLI can be exercised without
// hardware.
func fakeDevice(h smp.Header, payload map[string]any) (map[string]any, error) {
	if h.Group != smp.GroupOS {
		return map[string]any{"rc": uint64(smp.RcNotSupported)}, nil
	}
	switch h.ID {
	case osmgmt.IDEcho:
		return map[string]any{"r": payload["d"]}, nil
	case osmgmt.IDTaskStats:
		return map[string]any{
			"tasks": map[string]any{
				"idle": map[string]any{
					"prio": uint64(255), "state": uint64(1),
					"runtime": uint64(123456), "stksiz": uint64(512), "stkuse": uint64(96),
				},
				"main": map[string]any{
					"prio": uint64(10), "state": uint64(2),
					"runtime": uint64(7890), "stksiz": uint64(2048), "stkuse": uint64(1100),
				},
			},
		}, nil
	default:
		return map[string]any{"rc": uint64(smp.RcNotSupported)}, nil
	}
}
