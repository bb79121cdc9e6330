package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	apperrors "momentum-trader/internal/errors"
	"momentum-trader/internal/models"
	"momentum-trader/internal/stream"
)

// ImportMode selects how imported trades are combined with the ledger.
type ImportMode string

const (
	// ImportReplace substitutes the whole ledger.
	ImportReplace ImportMode = "replace"
	// ImportAdd appends every imported trade under a fresh id.
	ImportAdd ImportMode = "add"
	// ImportMerge overwrites trades with a matching id and appends the rest.
	ImportMerge ImportMode = "merge"
)

// ParseImportMode maps a mode name to an ImportMode, defaulting to merge.
func ParseImportMode(s string) (ImportMode, error) {
	switch ImportMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ImportMerge:
		return ImportMerge, nil
	case ImportReplace:
		return ImportReplace, nil
	case ImportAdd:
		return ImportAdd, nil
	default:
		return "", apperrors.NewValidationError("mode", s, "must be replace, add or merge")
	}
}

// ImportOptions controls Import.
type ImportOptions struct {
	Mode ImportMode
	// KeepActive re-adds the current active trades after a replace.
	KeepActive bool
}

// ImportResult counts the outcome of an import.
type ImportResult struct {
	Added    int      `json:"added"`
	Updated  int      `json:"updated"`
	Skipped  int      `json:"skipped"`
	Errors   int      `json:"errors"`
	Total    int      `json:"total"`
	Warnings []string `json:"warnings,omitempty"`
}

// Export returns the ledger as an interchange document.
func (l *Ledger) Export() *models.ExportDocument {
	l.mu.RLock()
	defer l.mu.RUnlock()

	meta := &models.ExportMetadata{
		Version:    models.ExportVersion,
		ExportDate: l.now(),
		TradeCount: len(l.trades),
	}
	for _, t := range l.trades {
		if t.IsActive() {
			meta.ActiveCount++
		} else {
			meta.ClosedCount++
		}
	}
	return &models.ExportDocument{Metadata: meta, Trades: cloneTrades(l.trades)}
}

// WriteExport encodes the ledger export as indented JSON.
func (l *Ledger) WriteExport(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(l.Export())
}

// ParseExport decodes an interchange document.
func ParseExport(r io.Reader) (*models.ExportDocument, error) {
	var doc models.ExportDocument
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrInvalidImport, err)
	}
	return &doc, nil
}

// ValidateImport checks the document shape before any mutation: metadata
// present, a non-empty trade list, and the required fields on the first trade.
func ValidateImport(doc *models.ExportDocument) error {
	if doc == nil || doc.Metadata == nil {
		return fmt.Errorf("%w: missing metadata", apperrors.ErrInvalidImport)
	}
	if len(doc.Trades) == 0 {
		return fmt.Errorf("%w: no trades", apperrors.ErrInvalidImport)
	}
	first := doc.Trades[0]
	var missing []string
	if first.StockName == "" {
		missing = append(missing, "stockName")
	}
	if first.Symbol == "" {
		missing = append(missing, "symbol")
	}
	if first.EntryPrice == 0 {
		missing = append(missing, "entryPrice")
	}
	if first.Status == "" {
		missing = append(missing, "status")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: first trade is missing %s", apperrors.ErrInvalidImport, strings.Join(missing, ", "))
	}
	return nil
}

// VersionWarning returns a warning when the document's major version differs
// from ExportVersion, or an empty string.
func VersionWarning(version string) string {
	if majorVersion(version) == majorVersion(models.ExportVersion) {
		return ""
	}
	return fmt.Sprintf("export version %q differs from supported major version %s", version, majorVersion(models.ExportVersion))
}

func majorVersion(v string) string {
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if i := strings.IndexByte(v, '.'); i >= 0 {
		return v[:i]
	}
	return v
}

// Import combines the document's trades with the ledger according to
// opts.Mode. A malformed document is rejected before anything changes; an
// invalid trade inside a valid document is counted in Errors and skipped.
// Ids repeated within the document are counted in Skipped.
func (l *Ledger) Import(ctx context.Context, doc *models.ExportDocument, opts ImportOptions) (*ImportResult, error) {
	if err := ValidateImport(doc); err != nil {
		return nil, err
	}
	if opts.Mode == "" {
		opts.Mode = ImportMerge
	}
	if _, err := ParseImportMode(string(opts.Mode)); err != nil {
		return nil, err
	}

	result := &ImportResult{Total: len(doc.Trades)}
	if w := VersionWarning(doc.Metadata.Version); w != "" {
		result.Warnings = append(result.Warnings, w)
		l.logger.Warn().Str("version", doc.Metadata.Version).Msg("Importing export with a different major version")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	prev := cloneTrades(l.trades)
	now := l.now()

	var next []models.LedgerTrade
	if opts.Mode == ImportReplace {
		next = make([]models.LedgerTrade, 0, len(doc.Trades))
	} else {
		next = cloneTrades(l.trades)
	}
	index := make(map[string]int, len(next))
	for i, t := range next {
		index[t.ID] = i
	}

	seen := make(map[string]bool, len(doc.Trades))
	for n, raw := range doc.Trades {
		trade, err := l.prepareImported(raw, opts.Mode)
		if err != nil {
			result.Errors++
			l.logger.Warn().Int("index", n).Str("trade_id", raw.ID).Err(err).Msg("Skipping invalid imported trade")
			continue
		}
		if seen[trade.ID] {
			result.Skipped++
			continue
		}
		seen[trade.ID] = true
		recompute(&trade, now)

		if i, ok := index[trade.ID]; ok && opts.Mode == ImportMerge {
			next[i] = trade
			result.Updated++
			continue
		}
		index[trade.ID] = len(next)
		next = append(next, trade)
		result.Added++
	}

	if opts.Mode == ImportReplace && opts.KeepActive {
		for _, t := range prev {
			if !t.IsActive() {
				continue
			}
			// The document already holds this position.
			if i, ok := index[t.ID]; ok && next[i].Symbol == t.Symbol && next[i].EntryDate.Equal(t.EntryDate) {
				continue
			}
			for _, taken := index[t.ID]; taken; _, taken = index[t.ID] {
				t.ID = l.newID()
			}
			index[t.ID] = len(next)
			next = append(next, t)
		}
	}

	l.trades = next
	if err := l.commit(ctx, prev, "import"); err != nil {
		return nil, err
	}

	l.logger.Info().
		Str("mode", string(opts.Mode)).
		Int("added", result.Added).
		Int("updated", result.Updated).
		Int("skipped", result.Skipped).
		Int("errors", result.Errors).
		Msg("Trades imported")
	l.publish(stream.LedgerEvent{Type: stream.EventImported, Count: result.Added + result.Updated})
	return result, nil
}

// prepareImported validates one imported trade and assigns its id for the mode.
func (l *Ledger) prepareImported(t models.LedgerTrade, mode ImportMode) (models.LedgerTrade, error) {
	t = cloneTrade(t)
	if strings.TrimSpace(t.Symbol) == "" {
		return t, apperrors.NewValidationError("symbol", t.Symbol, "symbol is required")
	}
	if !positive(t.EntryPrice) {
		return t, apperrors.NewValidationError("entryPrice", t.EntryPrice, "must be greater than zero")
	}
	switch t.Status {
	case models.StatusActive:
		t.ExitDate, t.ExitPrice, t.ExitReason = nil, 0, ""
		t.PLPercent, t.PLValue = 0, 0
		if !positive(t.CurrentPrice) {
			t.CurrentPrice = t.EntryPrice
		}
	case models.StatusClosed:
		if t.ExitDate == nil || !positive(t.ExitPrice) || t.ExitReason == "" {
			return t, apperrors.NewValidationError("exit", t.ID, "closed trade requires exit date, price and reason")
		}
	default:
		return t, apperrors.NewValidationError("status", t.Status, "must be active or closed")
	}
	if !positive(t.Shares) {
		if !positive(t.InvestmentAmount) {
			return t, apperrors.NewValidationError("shares", t.Shares, "shares or investment amount is required")
		}
		t.Shares = sharesFor(t.InvestmentAmount, t.EntryPrice)
	}
	if t.InvestmentAmount <= 0 {
		t.InvestmentAmount = valueAt(t.Shares, t.EntryPrice)
	}
	if t.StockName == "" {
		t.StockName = t.Symbol
	}
	if mode == ImportAdd || t.ID == "" {
		t.ID = l.newID()
	}
	return t, nil
}
