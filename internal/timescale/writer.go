package timescale

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"bot-panel/internal/config"
	"bot-panel/internal/fees"
	"bot-panel/internal/snapshot"
	"bot-panel/internal/transition"
)

const writeTimeout = 3 * time.Second

type AccountRow struct {
	Time            time.Time
	TotalCapital    float64
	TotalBalance    float64
	UsedAmount      float64
	SizeAmount      float64
	RemainingAmount float64
	NetProfit       float64
	NetTradeProfit  float64
	TotalTrades     int
	UsedFee         float64
	SizeFee         float64
	RemainingFee    float64
	TotalFee        float64
	ProfitTarget    float64
	LossTarget      float64
}

type TransitionRow struct {
	Time      time.Time
	Phase     string
	Outcome   string
	Running   bool
	ElapsedMS int64
	Message   string
}

// Writer records panel history into Postgres/Timescale. A nil *Writer is a
// valid no-op recorder.
type Writer struct {
	db             *sql.DB
	log            *zap.Logger
	schema         string
	accounts       chan AccountRow
	transitions    chan TransitionRow
	started        atomic.Bool
	dropAccount    atomic.Uint64
	dropTransition atomic.Uint64
}

func New(cfg config.TimescaleConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("timescale dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := newWriter(db, log, cfg.Schema, cfg.QueueSize)
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func newWriter(db *sql.DB, log *zap.Logger, schema string, queueSize int) *Writer {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		schema = "public"
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Writer{
		db:          db,
		log:         log,
		schema:      schema,
		accounts:    make(chan AccountRow, queueSize),
		transitions: make(chan TransitionRow, queueSize),
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

// RecordAccount queues one account snapshot with its fee figures.
func (w *Writer) RecordAccount(at time.Time, acct snapshot.Account, figures fees.Figures) {
	if w == nil {
		return
	}
	row := AccountRow{
		Time:            at.UTC(),
		TotalCapital:    acct.TotalCapital,
		TotalBalance:    acct.TotalBalance,
		UsedAmount:      acct.UsedAmount,
		SizeAmount:      acct.SizeAmount,
		RemainingAmount: acct.RemainingAmount,
		NetProfit:       acct.NetProfit,
		NetTradeProfit:  acct.NetTradeProfit,
		TotalTrades:     acct.TotalTrades,
		UsedFee:         figures.UsedFee,
		SizeFee:         figures.SizeFee,
		RemainingFee:    figures.RemainingFee,
		TotalFee:        figures.TotalFee,
		ProfitTarget:    figures.AutoCalProfitTarget,
		LossTarget:      figures.AutoCalLossTarget,
	}
	select {
	case w.accounts <- row:
	default:
		if w.dropAccount.Add(1) == 1 {
			w.log.Warn("timescale account queue full")
		}
	}
}

func (w *Writer) RecordTransition(outcome transition.Outcome) {
	if w == nil {
		return
	}
	row := TransitionRow{
		Time:      outcome.At.UTC(),
		Phase:     string(outcome.Phase),
		Outcome:   string(outcome.Kind),
		Running:   outcome.Running,
		ElapsedMS: outcome.Elapsed.Milliseconds(),
		Message:   outcome.Message,
	}
	select {
	case w.transitions <- row:
	default:
		if w.dropTransition.Add(1) == 1 {
			w.log.Warn("timescale transition queue full")
		}
	}
}

// Dropped reports rows discarded because a queue was full.
func (w *Writer) Dropped() (accounts, transitions uint64) {
	if w == nil {
		return 0, 0
	}
	return w.dropAccount.Load(), w.dropTransition.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.accounts:
			w.writeAccount(ctx, row)
		case row := <-w.transitions:
			w.writeTransition(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.db == nil {
		return errors.New("timescale db not initialized")
	}
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	for _, stmt := range w.schemaStatements() {
		if err := w.exec(ctx, stmt); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	for _, name := range []string{"account_snapshots", "transition_outcomes"} {
		if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table(name))); err != nil {
			w.log.Warn("timescale hypertable create failed", zap.String("table", name), zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) schemaStatements() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		total_capital DOUBLE PRECISION NOT NULL,
		total_balance DOUBLE PRECISION NOT NULL,
		used_amount DOUBLE PRECISION NOT NULL,
		size_amount DOUBLE PRECISION NOT NULL,
		remaining_amount DOUBLE PRECISION NOT NULL,
		net_profit DOUBLE PRECISION NOT NULL,
		net_trade_profit DOUBLE PRECISION NOT NULL,
		total_trades INTEGER NOT NULL,
		used_fee DOUBLE PRECISION NOT NULL,
		size_fee DOUBLE PRECISION NOT NULL,
		remaining_fee DOUBLE PRECISION NOT NULL,
		total_fee DOUBLE PRECISION NOT NULL,
		profit_target DOUBLE PRECISION NOT NULL,
		loss_target DOUBLE PRECISION NOT NULL
	)`, w.table("account_snapshots")),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		phase TEXT NOT NULL,
		outcome TEXT NOT NULL,
		running BOOLEAN NOT NULL,
		elapsed_ms BIGINT NOT NULL,
		message TEXT NOT NULL DEFAULT ''
	)`, w.table("transition_outcomes")),
	}
}

func (w *Writer) writeAccount(ctx context.Context, row AccountRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, total_capital, total_balance, used_amount, size_amount, remaining_amount,
		net_profit, net_trade_profit, total_trades, used_fee, size_fee, remaining_fee,
		total_fee, profit_target, loss_target
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
	)`, w.table("account_snapshots"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.TotalCapital,
		row.TotalBalance,
		row.UsedAmount,
		row.SizeAmount,
		row.RemainingAmount,
		row.NetProfit,
		row.NetTradeProfit,
		row.TotalTrades,
		row.UsedFee,
		row.SizeFee,
		row.RemainingFee,
		row.TotalFee,
		row.ProfitTarget,
		row.LossTarget,
	); err != nil {
		w.log.Warn("timescale account insert failed", zap.Error(err))
	}
}

func (w *Writer) writeTransition(ctx context.Context, row TransitionRow) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (ts, phase, outcome, running, elapsed_ms, message)
	VALUES ($1,$2,$3,$4,$5,$6)`, w.table("transition_outcomes"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.Phase,
		row.Outcome,
		row.Running,
		row.ElapsedMS,
		row.Message,
	); err != nil {
		w.log.Warn("timescale transition insert failed", zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
