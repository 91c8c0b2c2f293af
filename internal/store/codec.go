package store

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/gocarina/gocsv"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"ETFQuant/internal/model"
	"ETFQuant/internal/universe"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Value must encode as one cell, not as its Float/Valid fields.
var (
	_ gocsv.TypeMarshaller   = model.Value{}
	_ gocsv.TypeUnmarshaller = (*model.Value)(nil)
)

// csvRecord is the persisted column layout.
type csvRecord struct {
	Date          string      `csv:"日期"`
	Code          string      `csv:"代码"`
	Name          string      `csv:"名称"`
	ManagementFee string      `csv:"年管理费率"`
	CustodyFee    string      `csv:"年托管费率"`
	LatestClose   model.Value `csv:"最新收盘价"`
	SMA60         model.Value `csv:"60日均线"`
	Relation      string      `csv:"价格与60日均线关系"`
	Cross         string      `csv:"均线穿越"`
	DIF           model.Value `csv:"周MACD_DIF"`
	DEA           model.Value `csv:"周MACD_DEA"`
	Hist          model.Value `csv:"周MACD柱"`
	Turn          string      `csv:"MACD柱转向"`
}

func toRecord(r model.IndicatorRow) *csvRecord {
	return &csvRecord{
		Date:          r.Date,
		Code:          r.Code,
		Name:          r.Name,
		ManagementFee: r.ManagementFee,
		CustodyFee:    r.CustodyFee,
		LatestClose:   r.LatestClose,
		SMA60:         r.SMA60,
		Relation:      string(r.Relation),
		Cross:         string(r.Cross),
		DIF:           r.DIF,
		DEA:           r.DEA,
		Hist:          r.Hist,
		Turn:          string(r.Turn),
	}
}

func (c *csvRecord) toRow() model.IndicatorRow {
	code := strings.TrimSpace(c.Code)
	if padded, err := universe.NormalizeCode(code); err == nil {
		code = padded
	}
	return model.IndicatorRow{
		Date:          strings.TrimSpace(c.Date),
		Code:          code,
		Name:          c.Name,
		ManagementFee: c.ManagementFee,
		CustodyFee:    c.CustodyFee,
		LatestClose:   c.LatestClose,
		SMA60:         c.SMA60,
		Relation:      model.ParseRelation(c.Relation),
		Cross:         model.ParseCross(c.Cross),
		DIF:           c.DIF,
		DEA:           c.DEA,
		Hist:          c.Hist,
		Turn:          model.ParseTurn(c.Turn),
	}
}

// EncodeRows writes rows as CSV with a header. withBOM prefixes a UTF-8 byte order
// mark so spreadsheet tools detect the encoding.
func EncodeRows(w io.Writer, rows []model.IndicatorRow, withBOM bool) error {
	if withBOM {
		if _, err := w.Write(utf8BOM); err != nil {
			return err
		}
	}
	records := make([]*csvRecord, len(rows))
	for i, r := range rows {
		records[i] = toRecord(r)
	}
	if err := gocsv.Marshal(records, w); err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	return nil
}

// MarshalRows is EncodeRows into a byte slice.
func MarshalRows(rows []model.IndicatorRow, withBOM bool) ([]byte, error) {
	var buf bytes.Buffer
	if err := EncodeRows(&buf, rows, withBOM); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRows parses a dataset, with or without a byte order mark.
// Empty input is an empty dataset. Codes that lost their leading zeros are re-padded.
func DecodeRows(r io.Reader) ([]model.IndicatorRow, error) {
	data, err := io.ReadAll(transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var records []*csvRecord
	if err := gocsv.Unmarshal(bytes.NewReader(data), &records); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	rows := make([]model.IndicatorRow, 0, len(records))
	for _, rec := range records {
		row := rec.toRow()
		if row.Date == "" || row.Code == "" {
			continue
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// UnmarshalRows is DecodeRows over a byte slice.
func UnmarshalRows(data []byte) ([]model.IndicatorRow, error) {
	return DecodeRows(bytes.NewReader(data))
}
