package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vadiminshakov/interleave/config"
	"github.com/vadiminshakov/interleave/litmus"
	"github.com/vadiminshakov/interleave/verifier"
)

func main() {
	conf := config.Get()
	log.SetFormatter(&log.TextFormatter{
		ForceColors:     true, // Seems like automatic color detection doesn't work on windows terminals
		FullTimestamp:   true,
		TimestampFormat: time.RFC822,
	})
	log.SetLevel(conf.Level())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	os.Exit(run(ctx, conf))
}

func run(ctx context.Context, conf *config.Config) int {
	sc, err := litmus.Lookup(conf.Scenario, conf.Threads)
	if err != nil {
		log.Errorf("%v (known: %v)", err, litmus.Names())
		return 2
	}
	eng, err := sc.Engine()
	if err != nil {
		log.Error(err)
		return 2
	}
	opts := []verifier.Option{}
	if conf.Prune && len(sc.Invariants) > 0 {
		log.Warnf("pruning enabled, skipping %d per-step invariants of %s", len(sc.Invariants), sc.Name)
	} else {
		for _, inv := range sc.Invariants {
			opts = append(opts, verifier.WithInvariant(inv))
		}
	}
	v, err := verifier.NewVerifier(conf, eng, sc.Assertion, opts...)
	if err != nil {
		log.Error(err)
		return 2
	}

	res, err := v.Run(ctx)
	if err != nil {
		log.Error(err)
		return 2
	}
	fmt.Println(res)
	switch res.Outcome {
	case verifier.OutcomeProven:
		return 0
	case verifier.OutcomeViolated:
		fmt.Println(res.Counterexample)
	}
	return 1
}
