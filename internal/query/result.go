package query

import (
	"github.com/xtxerr/hivewatch/internal/errors"
	"github.com/xtxerr/hivewatch/internal/sketch"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Result is either data (Status ok) or a message (Status error).
type Result struct {
	Status  string
	Data    any
	Message string
	Code    int32
}

// Ok wraps successful data.
func Ok(data any) Result {
	return Result{Status: StatusOK, Data: data}
}

// Fail converts an error into an error result.
func Fail(err error) Result {
	return Result{Status: StatusError, Message: err.Error(), Code: errors.ErrorToCode(err)}
}

// IsOK reports whether the result carries data.
func (r Result) IsOK() bool {
	return r.Status == StatusOK
}

// =============================================================================
// Result Payloads
// =============================================================================

// BloomResult answers a bloom_filter query.
type BloomResult struct {
	Window            string  `json:"window"`
	Key               string  `json:"key"`
	Contains          bool    `json:"contains"`
	Inserted          int     `json:"inserted"`
	Bits              uint64  `json:"bits"`
	Hashes            int     `json:"hashes"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// MinWiseResult answers a minwise query.
type MinWiseResult struct {
	Window     string          `json:"window"`
	Records    int             `json:"records"`
	Similarity float64         `json:"similarity"`
	Redundant  bool            `json:"redundant"`
	Threshold  float64         `json:"threshold"`
	Sample     []sketch.Record `json:"sample"`
}

// CantidadResult answers a cantidad query.
type CantidadResult struct {
	Window        string   `json:"window"`
	Species       []string `json:"species"`
	Estimate      uint64   `json:"estimate"`
	StandardError float64  `json:"standard_error"`
}

// DGIMResult answers a dgim_filter query.
type DGIMResult struct {
	Window   string `json:"window"`
	Event    string `json:"event"`
	Estimate uint64 `json:"estimate"`
	Buckets  int    `json:"buckets"`
}
