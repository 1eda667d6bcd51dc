package feed

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/tx-collector/internal/domain"
)

// FileSource reads the fallback snapshot of transactions from a local CSV
// file with the header amount,balance,cancelYn,date,storeId,transactionId.
type FileSource struct {
	path string
	log  zerolog.Logger
}

// NewFileSource creates a fallback source reading from path.
func NewFileSource(path string, log zerolog.Logger) *FileSource {
	return &FileSource{
		path: path,
		log:  log.With().Str("component", "file_source").Logger(),
	}
}

// Load parses the snapshot. A missing file yields an empty slice, not an
// error. Malformed amount/balance values keep their raw text; the merge step
// coerces them before persistence.
func (s *FileSource) Load() ([]domain.Transaction, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Warn().Str("path", s.path).Msg("CSV snapshot not found, returning empty set")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w", s.path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"amount", "balance", "cancelYn", "date", "storeId", "transactionId"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("csv %s: missing column %q", s.path, required)
		}
	}

	var txs []domain.Transaction
	for line := 2; ; line++ {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv line %d: %w", line, err)
		}
		field := func(name string) string {
			return strings.TrimSpace(row[cols[name]])
		}
		tx := domain.Transaction{
			TransactionID: field("transactionId"),
			StoreID:       field("storeId"),
			Amount:        domain.ParseNumeric(field("amount")),
			Balance:       domain.ParseNumeric(field("balance")),
			CancelYN:      field("cancelYn"),
			Date:          field("date"),
		}
		if !tx.Amount.Valid || !tx.Balance.Valid {
			s.log.Warn().
				Int("line", line).
				Str("transaction_id", tx.TransactionID).
				Str("amount", tx.Amount.String()).
				Str("balance", tx.Balance.String()).
				Msg("Invalid numeric value in CSV record, keeping raw value for later coercion")
		}
		if tx.CancelYN != "Y" && tx.CancelYN != "N" {
			tx.CancelYN = "N"
		}
		txs = append(txs, tx)
	}

	s.log.Info().Int("count", len(txs)).Str("path", s.path).Msg("Parsed CSV snapshot")
	return txs, nil
}
