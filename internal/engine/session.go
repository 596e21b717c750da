package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	dberrors "github.com/leengari/cardinaldb/internal/domain/errors"
	"github.com/leengari/cardinaldb/internal/domain/transaction"
	"github.com/leengari/cardinaldb/internal/executor"
	"github.com/leengari/cardinaldb/internal/parser"
	"github.com/leengari/cardinaldb/internal/parser/ast"
	"github.com/leengari/cardinaldb/internal/parser/lexer"
)

// Session is one client's view of the engine: the selected datastore and
// the observers of its statements. A session runs one statement at a time.
type Session struct {
	engine *Engine
	tracer trace.Tracer

	mu        sync.Mutex
	ds        string
	observers []Observer
}

func newSession(e *Engine) *Session {
	return &Session{
		engine: e,
		tracer: otel.Tracer("github.com/leengari/cardinaldb/internal/engine"),
	}
}

// Datastore returns the selected datastore, "" before USE
func (s *Session) Datastore() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ds
}

// Use selects ds after checking it exists
func (s *Session) Use(ds string) error {
	if !s.engine.data.DatastoreExists(ds) {
		return dberrors.New(dberrors.DatastoreInvalid, "datastore '%s' does not exist", ds)
	}
	s.mu.Lock()
	s.ds = ds
	s.mu.Unlock()
	return nil
}

// Execute parses and runs one statement. Rejected statements come back as
// ack:"0" envelopes; storage failures are returned as errors.
func (s *Session) Execute(ctx context.Context, sql string) (*executor.Result, error) {
	tx := transaction.NewTransaction(s.Datastore())
	defer tx.Close()

	ctx, span := s.tracer.Start(ctx, "engine.execute", trace.WithAttributes(
		attribute.String("cardinaldb.tx_id", tx.ID),
		attribute.String("cardinaldb.datastore", tx.Datastore),
	))
	defer span.End()

	s.notify(Event{Type: EventLexStart, TxID: tx.ID, Data: sql})
	tokens, err := lexer.Tokenize(sql)
	if err != nil {
		return executor.Respond(nil, dberrors.Wrap(dberrors.InvalidQuery, err, "lexer error"))
	}
	s.notify(Event{Type: EventLexEnd, TxID: tx.ID, Data: len(tokens)})

	s.notify(Event{Type: EventParseStart, TxID: tx.ID})
	stmt, err := parser.New(tokens).Parse()
	if err != nil {
		return executor.Respond(nil, err)
	}
	s.notify(Event{Type: EventParseEnd, TxID: tx.ID, Data: fmt.Sprintf("%T", stmt)})

	if use, ok := stmt.(*ast.UseDatabaseStatement); ok {
		if err := s.Use(use.Name); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		return executor.Ack(fmt.Sprintf("Switched to datastore '%s'", use.Name)), nil
	}

	s.notify(Event{Type: EventExecStart, TxID: tx.ID})
	res, err := s.engine.exec.Execute(ctx, tx, stmt, sql)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if drop, ok := stmt.(*ast.DropDatabaseStatement); ok && drop.Name == tx.Datastore && res.Ack == executor.AckSuccess {
		s.mu.Lock()
		s.ds = ""
		s.mu.Unlock()
	}

	span.SetAttributes(attribute.String("cardinaldb.ack", res.Ack), attribute.Int("cardinaldb.rows", res.Rows))
	s.notify(Event{Type: EventExecEnd, TxID: tx.ID, Data: map[string]interface{}{
		"ack":     res.Ack,
		"rows":    res.Rows,
		"changes": len(tx.Changes()),
		"elapsed": tx.Elapsed().String(),
	}})
	return res, nil
}

// ListTables returns the tables of the selected datastore
func (s *Session) ListTables() ([]string, error) {
	ds := s.Datastore()
	if ds == "" {
		return nil, dberrors.New(dberrors.InvalidQuery, "no datastore selected")
	}
	return s.engine.data.Catalog().ListTables(ds)
}

// AddObserver registers an observer to receive lifecycle events
func (s *Session) AddObserver(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, observer)
}

// RemoveObserver unregisters an observer
func (s *Session) RemoveObserver(observer Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, o := range s.observers {
		if o == observer {
			s.observers = append(s.observers[:i], s.observers[i+1:]...)
			return
		}
	}
}

func (s *Session) notify(event Event) {
	event.Timestamp = time.Now()
	s.mu.Lock()
	observers := append([]Observer(nil), s.observers...)
	s.mu.Unlock()
	for _, observer := range observers {
		observer.OnEvent(event)
	}
}
