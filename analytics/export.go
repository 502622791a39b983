package analytics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"
	"gorm.io/gorm"
)

// reserveParquetRow is the on-disk Parquet schema for an exported reserve
// history window, following the otc-gateway reconciler's name/type tag
// convention for its own parquetRow.
type reserveParquetRow struct {
	Market                string `parquet:"name=market, type=BYTE_ARRAY, convertedtype=UTF8"`
	TokenMint             string `parquet:"name=token_mint, type=BYTE_ARRAY, convertedtype=UTF8"`
	Slot                  int64  `parquet:"name=slot, type=INT64"`
	CumulativeBorrowIndex string `parquet:"name=cumulative_borrow_index, type=BYTE_ARRAY, convertedtype=UTF8"`
	CumulativeSupplyIndex string `parquet:"name=cumulative_supply_index, type=BYTE_ARRAY, convertedtype=UTF8"`
	UtilizationBPS        int32  `parquet:"name=utilization_bps, type=INT32"`
	BorrowRateBPS         int32  `parquet:"name=borrow_rate_bps, type=INT32"`
	SupplyRateBPS         int32  `parquet:"name=supply_rate_bps, type=INT32"`
	ObservedAt            string `parquet:"name=observed_at, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// Exporter materializes ReserveSnapshot rows accumulated by a Sink into a
// Parquet file, once per ExportReserveHistory call, for an offline analytics
// pipeline to ingest. It does not schedule exports itself.
type Exporter struct {
	db        *gorm.DB
	outputDir string
}

// NewExporter builds an Exporter writing under outputDir.
func NewExporter(db *gorm.DB, outputDir string) *Exporter {
	if outputDir == "" {
		outputDir = filepath.Join("data", "radiantd", "analytics")
	}
	return &Exporter{db: db, outputDir: outputDir}
}

// ExportReserveHistory writes every ReserveSnapshot observed in [start, end)
// for market to a Parquet file under the exporter's output directory,
// returning the written path.
func (ex *Exporter) ExportReserveHistory(market string, start, end time.Time) (string, error) {
	var rows []ReserveSnapshot
	if err := ex.db.Where("market = ? AND observed_at >= ? AND observed_at < ?", market, start, end).
		Order("observed_at asc").Find(&rows).Error; err != nil {
		return "", fmt.Errorf("analytics: load reserve history: %w", err)
	}
	if len(rows) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(ex.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("analytics: ensure output dir: %w", err)
	}
	path := filepath.Join(ex.outputDir, fmt.Sprintf("reserve_%s_%s_%s.parquet", market, start.Format("20060102"), end.Format("20060102")))
	if err := writeReserveParquet(path, rows); err != nil {
		return "", err
	}
	return path, nil
}

func writeReserveParquet(path string, rows []ReserveSnapshot) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("analytics: create parquet: %w", err)
	}
	fw := writerfile.NewWriterFile(file)
	pw, err := writer.NewParquetWriter(fw, new(reserveParquetRow), 1)
	if err != nil {
		file.Close()
		return fmt.Errorf("analytics: parquet schema: %w", err)
	}
	pw.RowGroupSize = 64 * 1024 * 1024
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, row := range rows {
		pr := &reserveParquetRow{
			Market:                row.Market,
			TokenMint:             row.TokenMint,
			Slot:                  int64(row.Slot),
			CumulativeBorrowIndex: row.CumulativeBorrowIndex,
			CumulativeSupplyIndex: row.CumulativeSupplyIndex,
			UtilizationBPS:        int32(row.UtilizationBPS),
			BorrowRateBPS:         int32(row.BorrowRateBPS),
			SupplyRateBPS:         int32(row.SupplyRateBPS),
			ObservedAt:            row.ObservedAt.Format(time.RFC3339),
		}
		if err := pw.Write(pr); err != nil {
			pw.WriteStop()
			file.Close()
			return fmt.Errorf("analytics: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		file.Close()
		return fmt.Errorf("analytics: parquet flush: %w", err)
	}
	return file.Close()
}
