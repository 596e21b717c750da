package executor

import (
	"errors"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"gotest.tools/v3/assert"

	"github.com/leengari/cardinaldb/internal/domain/data"
	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
)

func TestEnvelopeJSON(t *testing.T) {
	tests := []struct {
		name string
		res  *Result
		want string
	}{
		{
			name: "payload in selection order",
			res: Payload([]data.Record{
				{"price": int64(3), "name": "apple", "extra": true},
			}, []string{"name", "price"}, 12*time.Millisecond),
			want: `{"ack":"1","payload":[{"name":"apple","price":3,"extra":true}],"time":12,"rows":1}`,
		},
		{
			name: "empty payload",
			res:  Payload(nil, nil, 0),
			want: `{"ack":"1","payload":[],"time":0,"rows":0}`,
		},
		{
			name: "rows affected",
			res:  Affected("Updated", 4),
			want: `{"ack":"1","rows":4}`,
		},
		{
			name: "ddl",
			res:  Ack("Table created"),
			want: `{"ack":"1"}`,
		},
		{
			name: "failure",
			res:  Failure("joins are not supported"),
			want: `{"ack":"0","cause":"joins are not supported"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.res)
			assert.NilError(t, err)
			assert.Equal(t, string(b), tt.want)
		})
	}
}

func TestRespond(t *testing.T) {
	res, err := Respond(nil, dberrors.New(dberrors.OperationNotSupported, "nope"))
	assert.NilError(t, err)
	assert.Equal(t, res.Ack, AckFailure)
	assert.Equal(t, res.Cause, "nope")

	res, err = Respond(nil, dberrors.Wrap(dberrors.InvalidQuery, errors.New("bad token"), "lexer error"))
	assert.NilError(t, err)
	assert.Equal(t, res.Cause, "lexer error: bad token")

	_, err = Respond(nil, dberrors.New(dberrors.SelectError, "boom"))
	assert.Assert(t, dberrors.Is(err, dberrors.SelectError))

	ok := Ack("done")
	res, err = Respond(ok, nil)
	assert.NilError(t, err)
	assert.Equal(t, res, ok)
}

func TestRowsMessage(t *testing.T) {
	assert.Equal(t, Affected("Deleted", 1).Message, "Deleted 1 row")
	assert.Equal(t, Affected("Deleted", 0).Message, "Deleted 0 rows")
}
