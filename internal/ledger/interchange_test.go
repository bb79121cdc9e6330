package ledger

import (
	"bytes"
	"context"
	"errors"
	"math"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/models"
)

func populated(t *testing.T) *testEnv {
	t.Helper()
	env := newTestLedger(t)
	ctx := context.Background()
	env.create(t, basicInput("AAA", 12))
	closed := env.create(t, basicInput("BBB", 30))
	env.create(t, basicInput("CCC", 2))
	if _, err := env.ledger.Close(ctx, closed, 92, models.ExitStopLossHit, ""); err != nil {
		t.Fatal(err)
	}
	return env
}

func TestExport(t *testing.T) {
	env := populated(t)
	doc := env.ledger.Export()

	if doc.Metadata.Version != models.ExportVersion || !doc.Metadata.ExportDate.Equal(testNow) {
		t.Errorf("unexpected metadata %+v", doc.Metadata)
	}
	if doc.Metadata.TradeCount != 3 || doc.Metadata.ActiveCount != 2 || doc.Metadata.ClosedCount != 1 {
		t.Errorf("unexpected counts %+v", doc.Metadata)
	}
}

func TestImport_RoundTripReplace(t *testing.T) {
	env := populated(t)
	original := env.ledger.All()

	var buf bytes.Buffer
	if err := env.ledger.WriteExport(&buf); err != nil {
		t.Fatalf("WriteExport failed: %v", err)
	}
	doc, err := ParseExport(&buf)
	if err != nil {
		t.Fatalf("ParseExport failed: %v", err)
	}

	target := newTestLedger(t)
	target.create(t, basicInput("ZZZ", 1))
	result, err := target.ledger.Import(context.Background(), doc, ImportOptions{Mode: ImportReplace})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Added != 3 || result.Total != 3 || result.Errors != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	if got := target.ledger.All(); !reflect.DeepEqual(got, original) {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, original)
	}
}

func TestImport_MergeIsIdempotent(t *testing.T) {
	env := populated(t)
	ctx := context.Background()
	before := env.ledger.All()
	doc := env.ledger.Export()

	for pass := 0; pass < 2; pass++ {
		result, err := env.ledger.Import(ctx, doc, ImportOptions{})
		if err != nil {
			t.Fatalf("pass %d: Import failed: %v", pass, err)
		}
		if result.Added != 0 || result.Updated != 3 {
			t.Errorf("pass %d: expected all updated, got %+v", pass, result)
		}
	}
	if after := env.ledger.All(); !reflect.DeepEqual(after, before) {
		t.Error("merging the ledger's own export must leave it unchanged")
	}
}

func TestImport_AddAssignsFreshIDs(t *testing.T) {
	env := populated(t)
	doc := env.ledger.Export()

	result, err := env.ledger.Import(context.Background(), doc, ImportOptions{Mode: ImportAdd})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Added != 3 || result.Updated != 0 {
		t.Errorf("unexpected result %+v", result)
	}
	all := env.ledger.All()
	if len(all) != 6 {
		t.Fatalf("expected 6 trades, got %d", len(all))
	}
	ids := make(map[string]bool)
	for _, trade := range all {
		if ids[trade.ID] {
			t.Errorf("duplicate id %s", trade.ID)
		}
		ids[trade.ID] = true
	}
}

func TestImport_ReplaceKeepActive(t *testing.T) {
	env := populated(t)
	doc := env.ledger.Export()

	target := newTestLedger(t)
	keptID := target.create(t, basicInput("KEEP", 1))
	// trade-1 collides with an id in the imported document.
	if keptID != "trade-1" {
		t.Fatalf("unexpected generated id %s", keptID)
	}

	result, err := target.ledger.Import(context.Background(), doc, ImportOptions{Mode: ImportReplace, KeepActive: true})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if result.Added != 3 {
		t.Errorf("unexpected result %+v", result)
	}
	all := target.ledger.All()
	if len(all) != 4 {
		t.Fatalf("expected imported trades plus kept active trade, got %d", len(all))
	}
	var kept *models.LedgerTrade
	for i := range all {
		if all[i].Symbol == "KEEP" {
			kept = &all[i]
		}
	}
	if kept == nil || kept.ID == "trade-1" {
		t.Errorf("kept active trade must be re-added under a fresh id, got %+v", kept)
	}
}

func TestImport_ReplaceOwnExportKeepsActiveOnce(t *testing.T) {
	env := populated(t)
	before := len(env.ledger.Active())
	doc := env.ledger.Export()

	if _, err := env.ledger.Import(context.Background(), doc, ImportOptions{Mode: ImportReplace, KeepActive: true}); err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if after := len(env.ledger.Active()); after != before {
		t.Errorf("active trades changed from %d to %d", before, after)
	}
	if len(env.ledger.All()) != len(doc.Trades) {
		t.Errorf("expected %d trades, got %d", len(doc.Trades), len(env.ledger.All()))
	}
}

func TestImport_PerTradeErrorsAndSkips(t *testing.T) {
	env := newTestLedger(t)
	exit := testNow
	doc := &models.ExportDocument{
		Metadata: &models.ExportMetadata{Version: "2.1.0"},
		Trades: []models.LedgerTrade{
			{ID: "x", StockName: "X", Symbol: "X", EntryPrice: 10, Shares: 5, Status: models.StatusActive, EntryDate: testNow},
			{ID: "x", StockName: "X", Symbol: "X", EntryPrice: 10, Shares: 5, Status: models.StatusActive, EntryDate: testNow},
			{ID: "y", StockName: "Y", Symbol: "Y", EntryPrice: -1, Status: models.StatusActive},
			{ID: "z", StockName: "Z", Symbol: "Z", EntryPrice: 10, Shares: 1, Status: models.StatusClosed},
			{ID: "w", StockName: "W", Symbol: "W", EntryPrice: 10, Shares: 1, Status: "pending"},
			{ID: "v", StockName: "V", Symbol: "V", EntryPrice: 10, InvestmentAmount: 100, Status: models.StatusClosed,
				ExitDate: &exit, ExitPrice: 12, ExitReason: models.ExitTargetHit},
		},
	}

	result, err := env.ledger.Import(context.Background(), doc, ImportOptions{Mode: ImportMerge})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	want := ImportResult{Added: 2, Skipped: 1, Errors: 3, Total: 6}
	if result.Added != want.Added || result.Skipped != want.Skipped || result.Errors != want.Errors || result.Total != want.Total {
		t.Errorf("Import() = %+v, want %+v", result, want)
	}
	if len(result.Warnings) != 0 {
		t.Errorf("same major version must not warn, got %v", result.Warnings)
	}

	v, err := env.ledger.Get("v")
	if err != nil {
		t.Fatal(err)
	}
	if v.Shares != 10 || math.Abs(v.PLValue-20) > 1e-9 {
		t.Errorf("derived fields not recomputed on import: %+v", v)
	}
}

func TestImport_InvalidDocumentLeavesLedgerUntouched(t *testing.T) {
	env := populated(t)
	before := env.ledger.All()
	version := env.ledger.Version()

	docs := []*models.ExportDocument{
		nil,
		{Trades: []models.LedgerTrade{{Symbol: "A"}}},
		{Metadata: &models.ExportMetadata{Version: "2.0.0"}},
		{Metadata: &models.ExportMetadata{Version: "2.0.0"}, Trades: []models.LedgerTrade{{Symbol: "A", EntryPrice: 1}}},
	}
	for i, doc := range docs {
		if _, err := env.ledger.Import(context.Background(), doc, ImportOptions{}); !errors.Is(err, apperrors.ErrInvalidImport) {
			t.Errorf("case %d: expected ErrInvalidImport, got %v", i, err)
		}
	}
	if _, err := ParseExport(strings.NewReader("{not json")); !errors.Is(err, apperrors.ErrInvalidImport) {
		t.Errorf("expected ErrInvalidImport for bad JSON, got %v", err)
	}
	if !reflect.DeepEqual(env.ledger.All(), before) || env.ledger.Version() != version {
		t.Error("rejected import must not mutate the ledger")
	}
}

func TestVersionWarning(t *testing.T) {
	if w := VersionWarning("2.9.1"); w != "" {
		t.Errorf("unexpected warning %q", w)
	}
	if w := VersionWarning("1.0"); w == "" {
		t.Error("expected warning for a different major version")
	}
	if _, err := ParseImportMode("upsert"); err == nil {
		t.Error("expected error for unknown mode")
	}
}

// Property: for every closed trade, plValue == shares * (exit - entry) and
// plPercent == (exit - entry) / entry * 100.
func TestProperty_ClosedTradePLIdentity(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)

	properties.Property("closed trade P/L matches its prices", prop.ForAll(
		func(entry, investment, exit float64) bool {
			env := newTestLedger(t)
			ctx := context.Background()
			id, err := env.ledger.Create(ctx, CreateInput{
				Symbol:           "PROP",
				EntryDate:        testNow.AddDate(0, 0, -7),
				EntryPrice:       entry,
				InvestmentAmount: investment,
			})
			if err != nil {
				t.Logf("Create failed: %v", err)
				return false
			}
			trade, err := env.ledger.Close(ctx, id, exit, "", "")
			if err != nil {
				t.Logf("Close failed: %v", err)
				return false
			}

			wantValue := trade.Shares * (exit - entry)
			wantPercent := (exit - entry) / entry * 100
			return math.Abs(trade.PLValue-wantValue) <= 1e-6*math.Max(1, math.Abs(wantValue)) &&
				math.Abs(trade.PLPercent-wantPercent) <= 1e-9*math.Max(1, math.Abs(wantPercent)) &&
				math.Abs(trade.Shares*entry-investment) <= 1e-6*investment
		},
		gen.Float64Range(0.5, 5000),
		gen.Float64Range(100, 1e6),
		gen.Float64Range(0.5, 5000),
	))

	properties.TestingRun(t)
}
