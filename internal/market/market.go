// Package market implements the trading agents: merchants who cry their
// wares and buyers who haggle for them. Concluded trades strengthen the
// pair's business relationship; rejected bids sour it slightly.
package market

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/event"
)

// Event kinds used in the marketplace.
const (
	KindOffer  = "offer"
	KindHaggle = "haggle"
	KindTrade  = "trade"
)

const (
	offerCooldown  = 3 * time.Second
	tradeImpact    = 0.05
	rebuffImpact   = -0.02
	tradeImportance = 0.7
)

// Merchant offers goods at a base price and accepts bids that clear its
// floor, four fifths of the asking price.
type Merchant struct {
	agent.Core

	cooldown time.Duration
	goods    []string
	prices   map[string]float64
	offered  map[string]bool
	pending  []event.Event
}

// NewMerchant builds a merchant from factory config. The "goods"
// attribute maps good name to asking price; "offer_cooldown_ms" paces
// how often a new good is cried.
func NewMerchant(cfg agent.Config, logger *zap.Logger) (agent.Agent, error) {
	m := &Merchant{
		Core:     agent.NewCore(cfg.ID, cfg.Name, cfg.Attributes, []string{KindHaggle}, logger),
		cooldown: offerCooldown,
		prices:   make(map[string]float64),
		offered:  make(map[string]bool),
	}
	if ms := m.AttrFloat("offer_cooldown_ms", -1); ms >= 0 {
		m.cooldown = time.Duration(ms) * time.Millisecond
	}
	if goods, ok := m.Attributes["goods"].(map[string]any); ok {
		for name, price := range goods {
			switch p := price.(type) {
			case float64:
				m.prices[name] = p
			case int:
				m.prices[name] = float64(p)
			}
			m.goods = append(m.goods, name)
		}
	}
	return m, nil
}

// ProcessEvent evaluates bids addressed to this merchant. A bid at or
// above the floor closes the trade; below it the buyer is rebuffed.
func (m *Merchant) ProcessEvent(e event.Event) {
	if e.Kind != KindHaggle || e.Target != m.ID() {
		return
	}
	good := e.String("good")
	ask, held := m.prices[good]
	if !held {
		return
	}
	bid := e.Float("bid", 0)
	if bid >= ask*0.8 {
		delete(m.prices, good)
		m.pending = append(m.pending, event.New(KindTrade, m.ID(), e.Source, map[string]any{
			"text":                      fmt.Sprintf("%s sells %s to %s for %.1f", m.Name(), good, e.Source, bid),
			"good":                      good,
			"price":                     bid,
			event.KeyParticipants:       []string{m.ID(), e.Source},
			event.KeyRelationshipImpact: tradeImpact,
		}))
		m.Remember(e, tradeImportance, 0.1)
		return
	}
	m.pending = append(m.pending, event.New(KindHaggle, m.ID(), e.Source, map[string]any{
		"text":                      fmt.Sprintf("%s rebuffs the bid of %.1f for %s", m.Name(), bid, good),
		"good":                      good,
		"rejected":                  true,
		event.KeyParticipants:       []string{m.ID(), e.Source},
		event.KeyRelationshipImpact: rebuffImpact,
	}))
}

// GenerateAction drains pending trade results first, then cries the next
// unoffered good.
func (m *Merchant) GenerateAction() *event.Event {
	if len(m.pending) > 0 {
		e := m.pending[0]
		m.pending = m.pending[1:]
		return &e
	}
	if !m.Ready(m.cooldown) {
		return nil
	}
	for _, good := range m.goods {
		price, held := m.prices[good]
		if !held || m.offered[good] {
			continue
		}
		m.offered[good] = true
		e := event.New(KindOffer, m.ID(), "", map[string]any{
			"text":  fmt.Sprintf("%s offers %s at %.1f", m.Name(), good, price),
			"good":  good,
			"price": price,
		})
		return &e
	}
	return nil
}

// Buyer watches for offers matching its interests and bids a fraction of
// the asking price set by its frugality.
type Buyer struct {
	agent.Core

	interests map[string]bool
	budget    float64
	frugality float64
	pending   []event.Event
}

// NewBuyer builds a buyer. Attributes: "interests" (list of good names),
// "budget", and "frugality" (0-1; higher means lower bids, default 0.15
// under asking).
func NewBuyer(cfg agent.Config, logger *zap.Logger) (agent.Agent, error) {
	b := &Buyer{
		Core:      agent.NewCore(cfg.ID, cfg.Name, cfg.Attributes, []string{KindOffer, KindHaggle, KindTrade}, logger),
		interests: make(map[string]bool),
	}
	b.budget = b.AttrFloat("budget", 100)
	b.frugality = b.AttrFloat("frugality", 0.15)
	switch list := b.Attributes["interests"].(type) {
	case []string:
		for _, g := range list {
			b.interests[g] = true
		}
	case []any:
		for _, v := range list {
			if g, ok := v.(string); ok {
				b.interests[g] = true
			}
		}
	}
	return b, nil
}

// Budget returns the remaining spending money.
func (b *Buyer) Budget() float64 { return b.budget }

// ProcessEvent bids on interesting offers and settles concluded trades.
func (b *Buyer) ProcessEvent(e event.Event) {
	switch e.Kind {
	case KindOffer:
		good := e.String("good")
		if !b.interests[good] {
			return
		}
		bid := e.Float("price", 0) * (1 - b.frugality)
		if bid > b.budget {
			return
		}
		b.pending = append(b.pending, event.New(KindHaggle, b.ID(), e.Source, map[string]any{
			"text": fmt.Sprintf("%s bids %.1f for %s", b.Name(), bid, good),
			"good": good,
			"bid":  bid,
		}))

	case KindTrade:
		if e.Target != b.ID() {
			return
		}
		b.budget -= e.Float("price", 0)
		delete(b.interests, e.String("good"))
		b.Remember(e, tradeImportance, 0.1)

	case KindHaggle:
		if e.Target != b.ID() {
			return
		}
		// A rebuff is worth remembering when deciding whom to buy from.
		b.Remember(e, 0.4, 0.2)
	}
}

// GenerateAction drains queued bids.
func (b *Buyer) GenerateAction() *event.Event {
	if len(b.pending) == 0 {
		return nil
	}
	e := b.pending[0]
	b.pending = b.pending[1:]
	return &e
}

// RegisterTypes wires the market agent constructors into a factory.
func RegisterTypes(f *agent.Factory) error {
	if err := f.RegisterType("merchant", NewMerchant); err != nil {
		return err
	}
	return f.RegisterType("buyer", NewBuyer)
}
