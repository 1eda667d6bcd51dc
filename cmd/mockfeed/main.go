// The mockfeed command serves both upstream mock feeds on their fixed
// ports: the transaction feed on 4001 and the store detail feed on 4002.
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/dvloznov/tx-collector/internal/feed"
	"github.com/dvloznov/tx-collector/internal/logger"
)

func main() {
	var (
		txAddr     = flag.String("transaction-addr", ":4001", "listen address for the transaction feed")
		detailAddr = flag.String("detail-addr", ":4002", "listen address for the store detail feed")
	)
	flag.Parse()

	log := logger.New()

	txs := feed.MockTransactions(time.Now())
	details := feed.MockStoreDetails()

	go func() {
		log.Info().Str("addr", *txAddr).Msg("Starting mock transaction feed")
		if err := http.ListenAndServe(*txAddr, feed.MockTransactionHandler(txs, log)); err != nil {
			log.Fatal().Err(err).Msg("Transaction feed stopped")
		}
	}()

	log.Info().Str("addr", *detailAddr).Msg("Starting mock store detail feed")
	if err := http.ListenAndServe(*detailAddr, feed.MockDetailHandler(details, log)); err != nil {
		log.Fatal().Err(err).Msg("Store detail feed stopped")
	}
}
