package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"cryptoSignalBot/internal/domain"
)

var candleHeader = []string{"open_time", "close_time", "symbol", "interval", "open", "high", "low", "close", "volume"}

// WriteCandlesToCSV writes candles to filename, oldest first as given.
func WriteCandlesToCSV(candles []*domain.Candle, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)

	if err := writer.Write(candleHeader); err != nil {
		return err
	}
	for _, c := range candles {
		if err := writer.Write([]string{
			c.OpenTime.UTC().Format(time.RFC3339),
			c.CloseTime.UTC().Format(time.RFC3339),
			c.Symbol,
			c.Interval,
			strconv.FormatFloat(c.Open, 'f', -1, 64),
			strconv.FormatFloat(c.High, 'f', -1, 64),
			strconv.FormatFloat(c.Low, 'f', -1, 64),
			strconv.FormatFloat(c.Close, 'f', -1, 64),
			strconv.FormatFloat(c.Volume, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCandlesFromCSV reads a file produced by WriteCandlesToCSV.
func ReadCandlesFromCSV(filename string) ([]*domain.Candle, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return ParseCandles(file)
}

// ParseCandles decodes candle rows, skipping the header.
func ParseCandles(r io.Reader) ([]*domain.Candle, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(candleHeader)

	var candles []*domain.Candle
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if line == 1 && record[0] == candleHeader[0] {
			continue
		}
		c, err := parseCandle(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		candles = append(candles, c)
	}
	return candles, nil
}

func parseCandle(record []string) (*domain.Candle, error) {
	openTime, err := time.Parse(time.RFC3339, record[0])
	if err != nil {
		return nil, fmt.Errorf("invalid open_time: %w", err)
	}
	closeTime, err := time.Parse(time.RFC3339, record[1])
	if err != nil {
		return nil, fmt.Errorf("invalid close_time: %w", err)
	}
	var values [5]float64
	for i := range values {
		values[i], err = strconv.ParseFloat(record[4+i], 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", candleHeader[4+i], err)
		}
	}
	return &domain.Candle{
		OpenTime:  openTime,
		CloseTime: closeTime,
		Symbol:    record[2],
		Interval:  record[3],
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}
