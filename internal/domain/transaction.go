// Package domain holds the core data shapes shared by the feeds, the merge
// store and the batch orchestrator.
package domain

// Transaction is one base transaction record as produced by the primary feed
// or the fallback CSV snapshot. Records are immutable once fetched.
type Transaction struct {
	TransactionID string  `json:"transactionId"`
	StoreID       string  `json:"storeId"`
	Amount        Numeric `json:"amount"`
	Balance       Numeric `json:"balance"`
	CancelYN      string  `json:"cancelYn"`
	Date          string  `json:"date"` // yyyy-MM-dd
}

// StoreDetail is one store-scoped detail record from the detail feed, joined
// to a Transaction by TransactionID.
type StoreDetail struct {
	StoreID       string `json:"storeId"`
	TransactionID string `json:"transactionId"`
	ProductID     string `json:"productId"`
}

// MergedRecord is the persisted union of a Transaction and its matching
// StoreDetail. Amount and Balance are coerced to numbers at merge time so an
// invalid literal from the CSV snapshot never reaches storage as a string.
type MergedRecord struct {
	TransactionID string  `json:"transactionId"`
	StoreID       string  `json:"storeId"`
	ProductID     string  `json:"productId"`
	Amount        float64 `json:"amount"`
	Balance       float64 `json:"balance"`
	CancelYN      string  `json:"cancelYn"`
	Date          string  `json:"date"`
}

// Merge combines a transaction with a detail record sharing the same
// transaction id. The caller is responsible for matching the ids.
func Merge(tx Transaction, detail StoreDetail) MergedRecord {
	return MergedRecord{
		TransactionID: tx.TransactionID,
		StoreID:       tx.StoreID,
		ProductID:     detail.ProductID,
		Amount:        tx.Amount.Float64(),
		Balance:       tx.Balance.Float64(),
		CancelYN:      tx.CancelYN,
		Date:          tx.Date,
	}
}
