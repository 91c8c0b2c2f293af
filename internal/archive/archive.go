// Package archive writes each snapshot to a parquet file for offline analysis.
package archive

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"ETFQuant/internal/model"
)

// Record is one snapshot row. Unavailable numbers are null.
type Record struct {
	Date          string   `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Code          string   `parquet:"name=code, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Name          string   `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	ManagementFee string   `parquet:"name=management_fee, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	CustodyFee    string   `parquet:"name=custody_fee, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	LatestClose   *float64 `parquet:"name=latest_close, type=DOUBLE, repetitiontype=OPTIONAL"`
	SMA60         *float64 `parquet:"name=sma60, type=DOUBLE, repetitiontype=OPTIONAL"`
	Relation      string   `parquet:"name=relation, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Cross         string   `parquet:"name=cross, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	DIF           *float64 `parquet:"name=macd_dif, type=DOUBLE, repetitiontype=OPTIONAL"`
	DEA           *float64 `parquet:"name=macd_dea, type=DOUBLE, repetitiontype=OPTIONAL"`
	Hist          *float64 `parquet:"name=macd_hist, type=DOUBLE, repetitiontype=OPTIONAL"`
	Turn          string   `parquet:"name=turn, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
}

func optional(v model.Value) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Rounded()
	return &f
}

// NewRecord converts a row, rounding numbers the same way the dataset does.
func NewRecord(r model.IndicatorRow) Record {
	return Record{
		Date:          r.Date,
		Code:          r.Code,
		Name:          r.Name,
		ManagementFee: r.ManagementFee,
		CustodyFee:    r.CustodyFee,
		LatestClose:   optional(r.LatestClose),
		SMA60:         optional(r.SMA60),
		Relation:      string(r.Relation),
		Cross:         string(r.Cross),
		DIF:           optional(r.DIF),
		DEA:           optional(r.DEA),
		Hist:          optional(r.Hist),
		Turn:          string(r.Turn),
	}
}

// FileName is the archive name for a snapshot date.
func FileName(asOf string) string {
	return fmt.Sprintf("snapshot_%s.parquet", asOf)
}

// WriteSnapshot writes snap to dir and returns the file path. An existing file
// for the same date is replaced.
func WriteSnapshot(dir string, snap *model.Snapshot) (string, error) {
	if snap.AsOf == "" {
		return "", fmt.Errorf("snapshot has no as-of date")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	filename := filepath.Join(dir, FileName(snap.AsOf))

	fw, err := local.NewLocalFileWriter(filename)
	if err != nil {
		return "", fmt.Errorf("failed to create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(Record), 2)
	if err != nil {
		return "", fmt.Errorf("failed to create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.PageSize = 8 * 1024

	for _, r := range snap.Rows {
		if err := pw.Write(NewRecord(r)); err != nil {
			return "", fmt.Errorf("failed to write parquet data: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return "", fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return filename, nil
}
