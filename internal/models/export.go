package models

import "time"

// ExportVersion is the interchange format version written by exports.
const ExportVersion = "2.0.0"

// ExportMetadata describes an exported ledger document.
type ExportMetadata struct {
	Version     string    `json:"version"`
	ExportDate  time.Time `json:"exportDate"`
	TradeCount  int       `json:"tradeCount"`
	ActiveCount int       `json:"activeCount"`
	ClosedCount int       `json:"closedCount"`
}

// ExportDocument is the interchange format for ledger import and export.
type ExportDocument struct {
	Metadata *ExportMetadata `json:"metadata"`
	Trades   []LedgerTrade   `json:"trades"`
}
