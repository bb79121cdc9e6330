package ledger

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/models"
)

type fakeFetcher struct {
	mu     sync.Mutex
	prices map[string]float64
	errs   map[string]error
	calls  map[string]int
	// during runs inside FetchLatestPrice, before returning.
	during func(symbol string)
}

func (f *fakeFetcher) FetchLatestPrice(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[symbol]++
	during := f.during
	f.mu.Unlock()

	if during != nil {
		during(symbol)
	}
	if err := f.errs[symbol]; err != nil {
		return 0, err
	}
	return f.prices[symbol], nil
}

func TestRefreshPrices_PartialFailure(t *testing.T) {
	env := newTestLedger(t)
	ctx := context.Background()
	a1 := env.create(t, basicInput("AAA", 3))
	a2 := env.create(t, basicInput("AAA", 4))
	b := env.create(t, basicInput("BBB", 3))
	saves := env.store.Saves()

	fetcher := &fakeFetcher{
		prices: map[string]float64{"AAA": 104},
		errs:   map[string]error{"BBB": apperrors.ErrRateLimited},
	}
	report, err := env.ledger.RefreshPrices(ctx, fetcher)
	if err != nil {
		t.Fatalf("RefreshPrices failed: %v", err)
	}

	if report.Symbols != 2 || len(report.Updated) != 1 || report.Updated[0] != "AAA" {
		t.Errorf("unexpected report %+v", report)
	}
	if msg, ok := report.Errors["BBB"]; !ok {
		t.Error("expected BBB failure in report")
	} else if !strings.HasPrefix(msg, "data error [price] BBB") {
		t.Errorf("expected a symbol-scoped data error, got %q", msg)
	}
	if report.TradesUpdated != 2 {
		t.Errorf("expected 2 trades updated, got %d", report.TradesUpdated)
	}
	if fetcher.calls["AAA"] != 1 {
		t.Errorf("expected one fetch per distinct symbol, got %d", fetcher.calls["AAA"])
	}
	if env.store.Saves() != saves+1 {
		t.Errorf("expected exactly one save per refresh, got %d", env.store.Saves()-saves)
	}

	for _, id := range []string{a1, a2} {
		trade, _ := env.ledger.Get(id)
		if trade.CurrentPrice != 104 || trade.CurrentPLValue != 400 {
			t.Errorf("trade %s not updated: %+v", id, trade)
		}
	}
	trade, _ := env.ledger.Get(b)
	if trade.CurrentPrice != 100 {
		t.Errorf("failed symbol must keep last known price, got %f", trade.CurrentPrice)
	}
}

func TestRefreshPrices_AutoClose(t *testing.T) {
	env := newTestLedger(t)
	target := env.create(t, basicInput("UP", 3))
	stop := env.create(t, basicInput("DOWN", 3))

	fetcher := &fakeFetcher{prices: map[string]float64{"UP": 111, "DOWN": 94}}
	report, err := env.ledger.RefreshPrices(context.Background(), fetcher)
	if err != nil {
		t.Fatalf("RefreshPrices failed: %v", err)
	}
	if len(report.AutoClosed) != 2 {
		t.Fatalf("expected 2 auto-closed trades, got %+v", report.AutoClosed)
	}

	up, _ := env.ledger.Get(target)
	if up.ExitReason != models.ExitTargetHit || up.ExitPrice != 111 {
		t.Errorf("unexpected target exit %+v", up)
	}
	down, _ := env.ledger.Get(stop)
	if down.ExitReason != models.ExitStopLossHit || down.ExitPrice != 94 {
		t.Errorf("unexpected stop exit %+v", down)
	}
}

func TestRefreshPrices_SkipsTradesDeletedDuringFetch(t *testing.T) {
	env := newTestLedger(t)
	ctx := context.Background()
	keep := env.create(t, basicInput("KEEP", 3))
	gone := env.create(t, basicInput("GONE", 3))

	fetcher := &fakeFetcher{prices: map[string]float64{"KEEP": 102, "GONE": 102}}
	var once sync.Once
	fetcher.during = func(symbol string) {
		once.Do(func() {
			if err := env.ledger.Delete(ctx, gone); err != nil {
				t.Errorf("Delete failed: %v", err)
			}
		})
	}

	report, err := env.ledger.RefreshPrices(ctx, fetcher)
	if err != nil {
		t.Fatalf("RefreshPrices failed: %v", err)
	}
	if report.TradesUpdated != 1 {
		t.Errorf("expected only the surviving trade updated, got %d", report.TradesUpdated)
	}
	if _, err := env.ledger.Get(gone); !errors.Is(err, apperrors.ErrTradeNotFound) {
		t.Error("deleted trade must not be resurrected")
	}
	trade, _ := env.ledger.Get(keep)
	if trade.CurrentPrice != 102 {
		t.Errorf("surviving trade not updated: %+v", trade)
	}
}

func TestRefreshPrices_NothingToDo(t *testing.T) {
	env := newTestLedger(t)
	report, err := env.ledger.RefreshPrices(context.Background(), &fakeFetcher{})
	if err != nil || report.Symbols != 0 {
		t.Errorf("RefreshPrices() = %+v, %v", report, err)
	}

	env.create(t, basicInput("AAA", 1))
	saves := env.store.Saves()
	report, err = env.ledger.RefreshPrices(context.Background(), &fakeFetcher{
		errs: map[string]error{"AAA": errors.New("timeout")},
	})
	if err != nil {
		t.Fatalf("RefreshPrices failed: %v", err)
	}
	if env.store.Saves() != saves {
		t.Error("no save expected when every symbol failed")
	}
	if len(report.Errors) != 1 {
		t.Errorf("expected one error, got %+v", report.Errors)
	}

	report, _ = env.ledger.RefreshPrices(context.Background(), &fakeFetcher{prices: map[string]float64{"AAA": 0}})
	if len(report.Errors) != 1 {
		t.Error("a zero price must be reported as a failure")
	}
}

func TestRefreshPrices_PersistenceFailure(t *testing.T) {
	env := newTestLedger(t)
	id := env.create(t, basicInput("AAA", 1))
	env.store.FailSave = errors.New("read-only")

	_, err := env.ledger.RefreshPrices(context.Background(), &fakeFetcher{prices: map[string]float64{"AAA": 150}})
	if !errors.Is(err, apperrors.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	trade, _ := env.ledger.Get(id)
	if trade.CurrentPrice != 100 || !trade.IsActive() {
		t.Errorf("prior state must be preserved, got %+v", trade)
	}
}
