// The gencsv command generates the fallback transaction.csv snapshot with
// randomized records, matching the layout the collector's file source reads.
package main

import (
	"encoding/csv"
	"flag"
	"math/rand"
	"os"
	"strconv"
	"time"

	"github.com/dvloznov/tx-collector/internal/logger"
)

func main() {
	var (
		path  = flag.String("out", "transaction.csv", "output file path")
		count = flag.Int("count", 1000, "number of records to generate")
	)
	flag.Parse()

	log := logger.New()

	f, err := os.Create(*path)
	if err != nil {
		log.Fatal().Err(err).Str("path", *path).Msg("Failed to create output file")
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"amount", "balance", "cancelYn", "date", "storeId", "transactionId"}); err != nil {
		log.Fatal().Err(err).Msg("Failed to write header")
	}

	now := time.Now()
	for i := 0; i < *count; i++ {
		cancel := "N"
		if rand.Intn(2) == 1 {
			cancel = "Y"
		}
		record := []string{
			strconv.Itoa(rand.Intn(100000)),
			strconv.Itoa(rand.Intn(1000000)),
			cancel,
			now.AddDate(0, 0, -rand.Intn(30)).Format("2006-01-02"),
			"store-" + strconv.Itoa(rand.Intn(10)+1),
			"tx-" + strconv.Itoa(i+1),
		}
		if err := w.Write(record); err != nil {
			log.Fatal().Err(err).Int("record", i).Msg("Failed to write record")
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		log.Fatal().Err(err).Msg("Failed to flush output")
	}

	log.Info().Int("count", *count).Str("path", *path).Msg("Generated CSV snapshot")
}
