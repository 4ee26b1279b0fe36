package export

import (
	"time"

	"github.com/sabarim/fyerschain/internal/margin"
)

// Snapshot identifies one priced chain written to disk
type Snapshot struct {
	Underlying string
	ExpiryDate string
	Side       string
	TakenAt    time.Time
	Rows       []margin.PricedOption
}

// ParquetRow is one priced option in the parquet snapshot
type ParquetRow struct {
	SnapshotAt     int64   `parquet:"name=snapshot_at, type=INT64, encoding=DELTA_BINARY_PACKED"`
	InstrumentName string  `parquet:"name=instrument_name, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	ExpiryDate     string  `parquet:"name=expiry_date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Symbol         string  `parquet:"name=symbol, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	StrikePrice    float64 `parquet:"name=strike_price, type=DOUBLE, encoding=PLAIN"`
	OptionSide     string  `parquet:"name=option_side, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Price          float64 `parquet:"name=price, type=DOUBLE, encoding=PLAIN"`
	Margin         float64 `parquet:"name=margin, type=DOUBLE, encoding=PLAIN"`
	Premium        float64 `parquet:"name=premium, type=DOUBLE, encoding=PLAIN"`
	Status         string  `parquet:"name=status, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Error          string  `parquet:"name=error, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// CSVRow is one priced option in the csv snapshot
type CSVRow struct {
	InstrumentName string  `csv:"instrument_name"`
	ExpiryDate     string  `csv:"expiry_date"`
	Symbol         string  `csv:"symbol"`
	StrikePrice    float64 `csv:"strike_price"`
	OptionSide     string  `csv:"option_side"`
	Price          float64 `csv:"price"`
	Margin         float64 `csv:"margin"`
	Premium        float64 `csv:"premium"`
	Status         string  `csv:"status"`
	Error          string  `csv:"error"`
}
