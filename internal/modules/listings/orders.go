package listings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/clients/spapi"
	"github.com/rinodehi1978/resell-trap-sub000/internal/notify"
)

type orderFetcher interface {
	GetNewOrders(ctx context.Context, createdAfter time.Time) ([]spapi.Order, error)
	GetOrderItems(ctx context.Context, orderID string) ([]spapi.OrderItem, error)
}

type orderSender interface {
	Enabled() bool
	Send(ctx context.Context, msg notify.Message) error
}

// seenCap bounds the in-memory order id set; on overflow the oldest entries
// are dropped down to seenTrim.
const (
	seenCap  = 500
	seenTrim = 200
)

// OrderMonitor polls for new marketplace orders and announces each one once.
// State is in-memory only: a restart re-announces nothing older than the
// start time.
type OrderMonitor struct {
	amazon orderFetcher
	sender orderSender

	since     time.Time
	seen      map[string]bool
	seenOrder []string
	now       func() time.Time
	log       zerolog.Logger
}

// NewOrderMonitor creates the order poller, announcing orders created after
// start-up.
func NewOrderMonitor(amazon orderFetcher, sender orderSender, log zerolog.Logger) *OrderMonitor {
	return &OrderMonitor{
		amazon: amazon,
		sender: sender,
		since:  time.Now().UTC(),
		seen:   make(map[string]bool),
		now:    time.Now,
		log:    log.With().Str("component", "order-monitor").Logger(),
	}
}

// Run fetches orders created since the last successful poll and posts one
// webhook per unseen order. The watermark advances before processing so a
// failed post can never wedge the poller into a re-fetch loop.
func (m *OrderMonitor) Run(ctx context.Context) error {
	createdAfter := m.since
	m.since = m.now().UTC()

	orders, err := m.amazon.GetNewOrders(ctx, createdAfter)
	if err != nil {
		return fmt.Errorf("failed to fetch new orders: %w", err)
	}

	for _, order := range orders {
		if m.seen[order.OrderID] {
			continue
		}
		m.remember(order.OrderID)
		m.announce(ctx, order)
	}
	return nil
}

func (m *OrderMonitor) remember(orderID string) {
	m.seen[orderID] = true
	m.seenOrder = append(m.seenOrder, orderID)
	if len(m.seenOrder) > seenCap {
		drop := m.seenOrder[:len(m.seenOrder)-seenTrim]
		for _, id := range drop {
			delete(m.seen, id)
		}
		m.seenOrder = append([]string(nil), m.seenOrder[len(m.seenOrder)-seenTrim:]...)
	}
}

func (m *OrderMonitor) announce(ctx context.Context, order spapi.Order) {
	m.log.Info().Str("order_id", order.OrderID).Str("status", order.Status).Msg("new order")
	if !m.sender.Enabled() {
		return
	}

	fields := []notify.Field{
		{Name: "注文番号", Value: order.OrderID},
		{Name: "ステータス", Value: order.Status},
	}
	if items, err := m.amazon.GetOrderItems(ctx, order.OrderID); err == nil {
		var lines []string
		for _, it := range items {
			lines = append(lines, fmt.Sprintf("%s ×%d (%s)", it.Title, it.Quantity, it.SKU))
		}
		if len(lines) > 0 {
			fields = append(fields, notify.Field{Name: "商品", Value: strings.Join(lines, "\n")})
		}
	} else {
		m.log.Warn().Err(err).Str("order_id", order.OrderID).Msg("failed to fetch order items")
	}

	if err := m.sender.Send(ctx, notify.Message{
		Title:  "新しい注文が入りました",
		Fields: fields,
	}); err != nil {
		m.log.Error().Err(err).Str("order_id", order.OrderID).Msg("order webhook failed")
	}
}
