package timescale

import (
	"context"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"bot-panel/internal/config"
	"bot-panel/internal/fees"
	"bot-panel/internal/snapshot"
	"bot-panel/internal/transition"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.TimescaleConfig{Enabled: false}, zap.NewNop())
	if err != nil || w != nil {
		t.Fatalf("expected nil writer, got %v %v", w, err)
	}
	if _, err := New(config.TimescaleConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatalf("expected error for missing dsn")
	}
}

func TestNilWriterIsNoop(t *testing.T) {
	var w *Writer
	w.RecordAccount(time.Now(), snapshot.Account{}, fees.Figures{})
	w.RecordTransition(transition.Outcome{})
	w.Start(context.Background())
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if a, tr := w.Dropped(); a != 0 || tr != 0 {
		t.Fatalf("unexpected drops %d %d", a, tr)
	}
}

func TestRecordQueuesAndDrops(t *testing.T) {
	w := newWriter(nil, zap.NewNop(), "", 1)
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	w.RecordAccount(at, snapshot.Account{UsedAmount: 1000, TotalTrades: 3}, fees.Figures{UsedFee: 0.7, AutoCalLossTarget: -1.05})
	w.RecordAccount(at, snapshot.Account{}, fees.Figures{})
	w.RecordTransition(transition.Outcome{Kind: transition.OutcomeTimedOut, Phase: transition.PhasePendingStart, At: at, Elapsed: 8 * time.Second})
	w.RecordTransition(transition.Outcome{})

	accounts, transitions := w.Dropped()
	if accounts != 1 || transitions != 1 {
		t.Fatalf("expected one drop per queue, got %d %d", accounts, transitions)
	}
	row := <-w.accounts
	if row.UsedAmount != 1000 || row.UsedFee != 0.7 || row.LossTarget != -1.05 || row.TotalTrades != 3 {
		t.Fatalf("unexpected account row %+v", row)
	}
	if row.Time.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", row.Time.Location())
	}
	tr := <-w.transitions
	if tr.Outcome != "timed_out" || tr.Phase != "PENDING_START" || tr.ElapsedMS != 8000 {
		t.Fatalf("unexpected transition row %+v", tr)
	}
}

func TestSchemaUsesConfiguredSchema(t *testing.T) {
	w := newWriter(nil, nil, "panel", 0)
	stmts := w.schemaStatements()
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d", len(stmts))
	}
	if !strings.Contains(stmts[0], "panel.account_snapshots") || !strings.Contains(stmts[1], "panel.transition_outcomes") {
		t.Fatalf("unexpected statements %v", stmts)
	}
	if cap(w.accounts) != 256 {
		t.Fatalf("expected default queue size, got %d", cap(w.accounts))
	}
}
