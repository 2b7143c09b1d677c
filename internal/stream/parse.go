package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/Mulfari/btrader-sub000/internal/models"
)

// streamMessage is the common exchange stream envelope. Acks and heartbeats
// carry op instead of topic and are ignored.
type streamMessage struct {
	Topic string          `json:"topic"`
	Type  string          `json:"type"`
	TS    int64           `json:"ts"`
	Data  json.RawMessage `json:"data"`
	Op    string          `json:"op"`
}

type tradePayload struct {
	Timestamp int64  `json:"T"`
	Symbol    string `json:"s"`
	Side      string `json:"S"`
	Volume    string `json:"v"`
	Price     string `json:"p"`
}

type bookPayload struct {
	Symbol   string     `json:"s"`
	Bids     [][]string `json:"b"`
	Asks     [][]string `json:"a"`
	UpdateID int64      `json:"u"`
	Seq      int64      `json:"seq"`
}

// handleMessage decodes one raw stream frame and forwards the resulting
// events. Unknown topics and operational frames are silently skipped.
func (g *Gateway) handleMessage(ctx context.Context, raw []byte) error {
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to parse stream envelope: %w", err)
	}
	if msg.Op != "" || msg.Topic == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(msg.Topic, "publicTrade."):
		trades, err := parseTrades(msg.Data)
		if err != nil {
			return err
		}
		for _, t := range trades {
			g.ch.SendTrade(ctx, t)
		}
	case strings.HasPrefix(msg.Topic, "orderbook.1."):
		symbol := strings.TrimPrefix(msg.Topic, "orderbook.1.")
		book, err := g.mergeBook(symbol, msg)
		if err != nil {
			return err
		}
		g.ch.SendBook(ctx, book)
	case strings.HasPrefix(msg.Topic, "allLiquidation."):
		events, err := parseLiquidations(msg.Data)
		if err != nil {
			return err
		}
		for _, e := range events {
			g.ch.SendLiquidation(ctx, e)
		}
	}
	return nil
}

// parseTrades decodes a publicTrade batch into domain trades.
func parseTrades(data json.RawMessage) ([]models.Trade, error) {
	var payload []tradePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse trade payload: %w", err)
	}

	trades := make([]models.Trade, 0, len(payload))
	for _, p := range payload {
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("bad trade price %q: %w", p.Price, err)
		}
		volume, err := strconv.ParseFloat(p.Volume, 64)
		if err != nil {
			return nil, fmt.Errorf("bad trade volume %q: %w", p.Volume, err)
		}
		trades = append(trades, models.Trade{
			Symbol:    p.Symbol,
			Side:      parseSide(p.Side),
			Price:     price,
			Volume:    volume,
			Timestamp: time.UnixMilli(p.Timestamp).UTC(),
		})
	}
	return trades, nil
}

// mergeBook applies a level-1 depth frame on top of the last known state.
// Delta frames may omit an unchanged side.
func (g *Gateway) mergeBook(symbol string, msg streamMessage) (models.TopOfBook, error) {
	var payload bookPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return models.TopOfBook{}, fmt.Errorf("failed to parse orderbook payload: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	book := g.books[symbol]
	book.Symbol = symbol
	book.UpdateID = payload.UpdateID
	book.Seq = payload.Seq
	book.Timestamp = time.UnixMilli(msg.TS).UTC()

	if len(payload.Bids) > 0 && len(payload.Bids[0]) >= 2 {
		price, err := strconv.ParseFloat(payload.Bids[0][0], 64)
		if err != nil {
			return models.TopOfBook{}, fmt.Errorf("bad bid price %q: %w", payload.Bids[0][0], err)
		}
		size, err := strconv.ParseFloat(payload.Bids[0][1], 64)
		if err != nil {
			return models.TopOfBook{}, fmt.Errorf("bad bid size %q: %w", payload.Bids[0][1], err)
		}
		book.BidPrice = price
		book.BidSize = size
	}
	if len(payload.Asks) > 0 && len(payload.Asks[0]) >= 2 {
		price, err := strconv.ParseFloat(payload.Asks[0][0], 64)
		if err != nil {
			return models.TopOfBook{}, fmt.Errorf("bad ask price %q: %w", payload.Asks[0][0], err)
		}
		size, err := strconv.ParseFloat(payload.Asks[0][1], 64)
		if err != nil {
			return models.TopOfBook{}, fmt.Errorf("bad ask size %q: %w", payload.Asks[0][1], err)
		}
		book.AskPrice = price
		book.AskSize = size
	}

	g.books[symbol] = book
	return book, nil
}

// parseLiquidations decodes an allLiquidation batch.
func parseLiquidations(data json.RawMessage) ([]models.LiquidationEvent, error) {
	var payload []tradePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse liquidation payload: %w", err)
	}

	events := make([]models.LiquidationEvent, 0, len(payload))
	for _, p := range payload {
		price, err := strconv.ParseFloat(p.Price, 64)
		if err != nil {
			return nil, fmt.Errorf("bad liquidation price %q: %w", p.Price, err)
		}
		volume, err := strconv.ParseFloat(p.Volume, 64)
		if err != nil {
			return nil, fmt.Errorf("bad liquidation volume %q: %w", p.Volume, err)
		}
		events = append(events, models.LiquidationEvent{
			Symbol:    p.Symbol,
			Side:      parseSide(p.Side),
			Price:     price,
			Volume:    volume,
			Value:     price * volume,
			Timestamp: time.UnixMilli(p.Timestamp).UTC(),
		})
	}
	return events, nil
}

func parseSide(s string) models.TradeSide {
	if strings.EqualFold(s, "Buy") {
		return models.TradeSideBuy
	}
	return models.TradeSideSell
}
