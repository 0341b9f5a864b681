// Command agora runs a short, headless marketplace session and prints
// what happened: trades concluded, relationships moved, memories kept.
// Useful for demos and for eyeballing market tuning without the server.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/market"
	"github.com/nidhogg/curia/internal/relation"
	"github.com/nidhogg/curia/internal/world"
)

func main() {
	ticks := flag.Int("ticks", 10, "number of simulation ticks to run")
	verbose := flag.Bool("v", false, "log every event")
	flag.Parse()

	logger := zap.NewNop()
	if *verbose {
		logger, _ = zap.NewDevelopment()
	}

	bus := event.NewBus(logger)
	relations := relation.NewManager(logger)
	relations.BindBus(bus)
	agents := agent.NewManager(bus, logger)

	factory := agent.NewFactory(logger)
	if err := market.RegisterTypes(factory); err != nil {
		fatal("register market types: %v", err)
	}

	roster := []struct {
		typ string
		cfg agent.Config
	}{
		{"merchant", agent.Config{
			ID: "crassus", Name: "Crassus",
			Attributes: map[string]any{
				"goods":             map[string]any{"grain": 10.0, "wine": 25.0, "oil": 15.0},
				"offer_cooldown_ms": 0,
			},
		}},
		{"buyer", agent.Config{
			ID: "livia", Name: "Livia",
			Attributes: map[string]any{
				"interests": []any{"grain", "wine"},
				"budget":    50.0,
				"frugality": 0.1,
			},
		}},
		{"buyer", agent.Config{
			ID: "marcus", Name: "Marcus",
			Attributes: map[string]any{
				"interests": []any{"oil"},
				"budget":    20.0,
				"frugality": 0.3,
			},
		}},
	}
	for _, r := range roster {
		a, err := factory.Create(r.typ, r.cfg)
		if err != nil {
			fatal("create %s: %v", r.cfg.ID, err)
		}
		if err := agents.Register(a); err != nil {
			fatal("register %s: %v", r.cfg.ID, err)
		}
	}

	for _, buyer := range []string{"livia", "marcus"} {
		if _, err := relations.Create("crassus", buyer, relation.TypeBusiness, 0, nil); err != nil {
			fatal("seed relationship: %v", err)
		}
	}

	var trades int
	bus.Subscribe(market.KindTrade, event.HandlerFunc{ID: "agora-tally", Fn: func(e event.Event) {
		trades++
		fmt.Printf("trade: %s\n", e.String("text"))
	}}, 0)

	sim := world.NewSimulation(agents, bus, relations, world.Options{}, logger)
	clock := world.NewClock(time.Second, 1.0, logger)
	clock.AddListener(sim)

	for i := 0; i < *ticks; i++ {
		clock.Advance(time.Second)
	}

	fmt.Printf("\n%d ticks, %d trades\n", *ticks, trades)
	for _, rel := range relations.All() {
		fmt.Printf("relationship %s-%s (%s): strength %.2f, %s\n",
			rel.AgentA, rel.AgentB, rel.Type, rel.Strength, rel.Sentiment())
	}
	for _, a := range agents.List() {
		if b, ok := a.(*market.Buyer); ok {
			fmt.Printf("%s: budget %.1f remaining, %d memories\n",
				a.Name(), b.Budget(), b.Memory.Len())
		}
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
