package executor

import (
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
)

const (
	AckSuccess = "1"
	AckFailure = "0"
)

// Result is the response envelope of a statement:
//
//	{"ack":"1","payload":[...],"time":ms,"rows":n}  SELECT
//	{"ack":"1","rows":n}                           INSERT, UPDATE, DELETE
//	{"ack":"1"}                                    DDL
//	{"ack":"0","cause":"..."}                      rejected statement
type Result struct {
	Ack     string
	Cause   string
	Payload []data.Record
	Columns []string // payload key order; nil when every column was selected
	Time    int64    // milliseconds
	Rows    int
	Message string // human readable summary, not serialized

	hasPayload bool
	hasRows    bool
}

// Payload builds a SELECT envelope
func Payload(records []data.Record, columns []string, elapsed time.Duration) *Result {
	if records == nil {
		records = []data.Record{}
	}
	return &Result{
		Ack:        AckSuccess,
		Payload:    records,
		Columns:    columns,
		Time:       elapsed.Milliseconds(),
		Rows:       len(records),
		Message:    rowsMessage("Returned", len(records)),
		hasPayload: true,
		hasRows:    true,
	}
}

// Affected builds the envelope of a write statement
func Affected(verb string, n int) *Result {
	return &Result{Ack: AckSuccess, Rows: n, Message: rowsMessage(verb, n), hasRows: true}
}

// Ack builds a bare success envelope
func Ack(message string) *Result {
	return &Result{Ack: AckSuccess, Message: message}
}

// Failure builds the envelope of a rejected statement
func Failure(cause string) *Result {
	return &Result{Ack: AckFailure, Cause: cause, Message: cause}
}

// Respond turns an execution outcome into an envelope. Invalid queries and
// unsupported operations become ack:"0" envelopes; other errors are returned.
func Respond(res *Result, err error) (*Result, error) {
	if err == nil {
		return res, nil
	}
	switch dberrors.CodeOf(err) {
	case dberrors.InvalidQuery, dberrors.OperationNotSupported:
		return Failure(CauseOf(err)), nil
	}
	return nil, err
}

// CauseOf is the cause text of err as written in a failure envelope
func CauseOf(err error) string {
	var opErr *dberrors.OperationError
	if errors.As(err, &opErr) && opErr.Message != "" {
		if opErr.Err != nil {
			return opErr.Message + ": " + opErr.Err.Error()
		}
		return opErr.Message
	}
	return err.Error()
}

func rowsMessage(verb string, n int) string {
	if n == 1 {
		return verb + " 1 row"
	}
	return verb + " " + strconv.Itoa(n) + " rows"
}

// MarshalJSON writes the envelope keys in a fixed order and every payload
// record in selection order
func (r *Result) MarshalJSON() ([]byte, error) {
	om := orderedmap.New[string, interface{}]()
	om.Set("ack", r.Ack)
	if r.Ack == AckFailure {
		om.Set("cause", r.Cause)
		return json.Marshal(om)
	}
	if r.hasPayload {
		rows := make([]*orderedmap.OrderedMap[string, interface{}], len(r.Payload))
		for i, rec := range r.Payload {
			rows[i] = orderRecord(rec, r.Columns)
		}
		om.Set("payload", rows)
		om.Set("time", r.Time)
	}
	if r.hasRows {
		om.Set("rows", r.Rows)
	}
	return json.Marshal(om)
}

func orderRecord(rec data.Record, columns []string) *orderedmap.OrderedMap[string, interface{}] {
	om := orderedmap.New[string, interface{}]()
	for _, c := range columns {
		if v, ok := rec[c]; ok {
			om.Set(c, v)
		}
	}
	rest := make([]string, 0, len(rec))
	for k := range rec {
		if _, seen := om.Get(k); !seen {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for _, k := range rest {
		om.Set(k, rec[k])
	}
	return om
}
