package event

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"PaperFolio/internal/ledger"
)

type recordingHandler struct {
	got []Kind
}

func (r *recordingHandler) HandleInitialPortfolioData(m InitialPortfolioData) {
	r.got = append(r.got, m.Kind())
}
func (r *recordingHandler) HandlePortfolioUpdate(m PortfolioUpdate) { r.got = append(r.got, m.Kind()) }
func (r *recordingHandler) HandlePositionsUpdate(m PositionsUpdate) { r.got = append(r.got, m.Kind()) }
func (r *recordingHandler) HandleTradeExecuted(m TradeExecuted)     { r.got = append(r.got, m.Kind()) }
func (r *recordingHandler) HandleBalanceUpdate(m BalanceUpdate)     { r.got = append(r.got, m.Kind()) }
func (r *recordingHandler) HandlePositionUpdate(m PositionUpdate)   { r.got = append(r.got, m.Kind()) }
func (r *recordingHandler) HandleMarkPriceUpdate(m MarkPriceUpdate) { r.got = append(r.got, m.Kind()) }

func TestDispatch_RoutesEveryKind(t *testing.T) {
	msgs := []Message{
		InitialPortfolioData{},
		PortfolioUpdate{At: time.Now()},
		PositionsUpdate{},
		TradeExecuted{Trade: ledger.Trade{ID: uuid.New()}},
		BalanceUpdate{},
		PositionUpdate{},
		MarkPriceUpdate{Symbol: "BTCUSDT", Price: 10_000},
	}

	h := &recordingHandler{}
	for _, m := range msgs {
		if err := Dispatch(m, h); err != nil {
			t.Fatalf("dispatch %s: %v", m.Kind(), err)
		}
	}

	if len(h.got) != len(msgs) {
		t.Fatalf("dispatched %d of %d messages", len(h.got), len(msgs))
	}
	for i, m := range msgs {
		if h.got[i] != m.Kind() {
			t.Errorf("message %d routed as %s, want %s", i, h.got[i], m.Kind())
		}
	}
}

func TestDispatch_UnknownType(t *testing.T) {
	h := &recordingHandler{}
	if err := Dispatch(bogusMessage{}, h); err == nil {
		t.Fatal("expected error for unhandled message type")
	}
	if len(h.got) != 0 {
		t.Errorf("handler invoked for unknown type")
	}
}

type bogusMessage struct{}

func (bogusMessage) Kind() Kind       { return KindUnknown }
func (bogusMessage) DedupKey() string { return "" }

func TestParseKind_RoundTrip(t *testing.T) {
	for k := KindInitialPortfolioData; k <= KindMarkPriceUpdate; k++ {
		if got := ParseKind(k.String()); got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", k.String(), got, k)
		}
	}
	if got := ParseKind("nonsense"); got != KindUnknown {
		t.Errorf("ParseKind(nonsense) = %v, want KindUnknown", got)
	}
}

func TestTradeExecuted_DedupKey(t *testing.T) {
	id := uuid.New()
	m := TradeExecuted{Trade: ledger.Trade{ID: id}}
	if m.DedupKey() != id.String() {
		t.Errorf("dedup key = %q, want trade id", m.DedupKey())
	}
}
