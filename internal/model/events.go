package model

const (
	EventTypePrice  = "price"
	EventTypeNav    = "nav"
	EventTypeReload = "reload"
)

// Event is anything the update broadcaster can fan out to stream
// consumers. The Type discriminator is part of the wire payload.
type Event interface {
	EventType() string
}

type PriceUpdate struct {
	Type             string   `json:"type"`
	Symbol           string   `json:"symbol"`
	Price            *float64 `json:"price"`
	PreviousClose    *float64 `json:"previousClose"`
	IsMarketClosed   bool     `json:"isMarketClosed"`
	TradingPeriodEnd *int64   `json:"tradingPeriodEnd"`
	Timestamp        int64    `json:"timestamp"`
}

func (PriceUpdate) EventType() string { return EventTypePrice }

func NewPriceUpdate(symbol string, q MarketQuote) PriceUpdate {
	return PriceUpdate{
		Type:             EventTypePrice,
		Symbol:           symbol,
		Price:            q.CurrentPrice,
		PreviousClose:    q.PreviousClose,
		IsMarketClosed:   q.IsMarketClosed,
		TradingPeriodEnd: q.TradingPeriodEnd,
		Timestamp:        q.LastUpdateMs,
	}
}

type NavUpdate struct {
	Type      string  `json:"type"`
	Symbol    string  `json:"symbol"`
	Nav       float64 `json:"nav"`
	Timestamp int64   `json:"timestamp"`
}

func (NavUpdate) EventType() string { return EventTypeNav }

func NewNavUpdate(symbol string, r NavRecord) NavUpdate {
	return NavUpdate{
		Type:      EventTypeNav,
		Symbol:    symbol,
		Nav:       r.Nav,
		Timestamp: r.LastFetchMs,
	}
}

// ReloadSignal tells consumers their cached view is stale and must be
// refetched from scratch, not patched incrementally.
type ReloadSignal struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

func (ReloadSignal) EventType() string { return EventTypeReload }

func NewReloadSignal(nowMs int64) ReloadSignal {
	return ReloadSignal{Type: EventTypeReload, Timestamp: nowMs}
}
