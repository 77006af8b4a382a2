package model

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type RedemptionStatus string

const (
	RedemptionPending RedemptionStatus = "PENDING"
	RedemptionSucceed RedemptionStatus = "SUCCEED"
	RedemptionError   RedemptionStatus = "ERROR"
)

type Redemption struct {
	Time   Timestamp        `json:"time"`
	Amount decimal.Decimal  `json:"amount"`
	Status RedemptionStatus `json:"status"`
	Method string           `json:"method"`
}

type RedemptionStats struct {
	Total         int             `json:"total"`
	TotalAmount   decimal.Decimal `json:"totalAmount"`
	PendingCount  int             `json:"pendingCount"`
	PendingAmount decimal.Decimal `json:"pendingAmount"`
	SuccessCount  int             `json:"successCount"`
	SuccessAmount decimal.Decimal `json:"successAmount"`
	ErrorCount    int             `json:"errorCount"`
	ErrorAmount   decimal.Decimal `json:"errorAmount"`
}

// Timestamp decodes RFC3339 strings as well as unix seconds or milliseconds.
type Timestamp struct {
	time.Time
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		t.Time = time.Time{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			t.Time = time.Time{}
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			t.Time = fromUnix(n)
			return nil
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return err
	}
	t.Time = fromUnix(int64(n))
	return nil
}

func fromUnix(n int64) time.Time {
	// values past year 2286 in seconds are milliseconds
	if n > 1e10 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}
