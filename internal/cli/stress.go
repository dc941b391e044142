// Package cli implements the rowlock command line.
package cli

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/mistakeknot/rowlock/internal/audit"
	"github.com/mistakeknot/rowlock/internal/config"
	"github.com/mistakeknot/rowlock/internal/core"
	"github.com/mistakeknot/rowlock/internal/server"
	"github.com/mistakeknot/rowlock/internal/ws"
	"github.com/mistakeknot/rowlock/pkg/workbook"
)

// StressOptions parameterizes one stress run.
type StressOptions struct {
	Sheet   string
	Agents  int
	Rows    int64
	Reserve bool // alternate agents through the reserve-then-write path
	Listen  bool
}

// StressCmd returns the stress command: N concurrent agents hammering one
// in-process workbook through every exposed operation.
func StressCmd() *cobra.Command {
	var opts StressOptions

	cmd := &cobra.Command{
		Use:   "stress",
		Short: "Run concurrent agents against an in-process workbook",
		Long: `Spawns N concurrent agents writing to a single shared workbook.
Even-numbered agents reserve a range first and fill it later; odd-numbered
agents append directly. With --listen, the run also serves the WebSocket
event feed at /ws and the allocation snapshot at /api/status.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadFromEnv()
			if err != nil {
				return err
			}
			return runStress(cmd.Context(), cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Sheet, "sheet", "stress", "target sheet name")
	cmd.Flags().IntVar(&opts.Agents, "agents", 8, "number of concurrent agents")
	cmd.Flags().Int64Var(&opts.Rows, "rows", 1000, "rows written per agent")
	cmd.Flags().BoolVar(&opts.Reserve, "reserve", true, "route half the agents through reservations")
	cmd.Flags().BoolVar(&opts.Listen, "listen", false, "serve /ws and /api/status during the run")
	return cmd
}

func runStress(ctx context.Context, cmd *cobra.Command, cfg config.Config, opts StressOptions) error {
	if opts.Agents <= 0 || opts.Rows <= 0 {
		return fmt.Errorf("agents and rows must be positive")
	}

	var svcOpts []workbook.Option
	hub := ws.NewHub()
	if opts.Listen {
		svcOpts = append(svcOpts, workbook.WithBroadcaster(hub))
	}
	if cfg.AuditDB != "" {
		journal, err := audit.New(cfg.AuditDB)
		if err != nil {
			return fmt.Errorf("open audit journal: %w", err)
		}
		svcOpts = append(svcOpts, workbook.WithJournal(journal))
	}

	svc := workbook.New(cfg, svcOpts...)
	defer svc.Close()
	svc.Start(ctx)

	if opts.Listen {
		srv, err := server.New(server.Config{
			Addr:   cfg.ListenAddr,
			Status: svc,
			WSFeed: hub.Handler(),
		})
		if err != nil {
			return err
		}
		go srv.Serve()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		cmd.Printf("observing at http://%s/api/status and ws://%s/ws\n", srv.Addr(), srv.Addr())
	}

	start := time.Now()
	var wg sync.WaitGroup
	errs := make(chan error, opts.Agents)
	for i := 0; i < opts.Agents; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			agent := fmt.Sprintf("agent-%02d", i)
			if opts.Reserve && i%2 == 0 {
				errs <- reserveAndFill(ctx, svc, opts.Sheet, agent, opts.Rows)
			} else {
				errs <- appendDirect(ctx, svc, opts.Sheet, agent, opts.Rows)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}
	elapsed := time.Since(start)

	status := svc.Status()
	total := status.SheetRows[opts.Sheet]
	cmd.Printf("%d agents wrote %d rows to %q in %s (%.0f rows/s)\n",
		opts.Agents, total, opts.Sheet, elapsed.Round(time.Millisecond),
		float64(total)/elapsed.Seconds())
	for sheet, active := range status.ActiveReservations {
		cmd.Printf("  %s: %d reservation(s) still active\n", sheet, len(active))
	}
	return nil
}

func reserveAndFill(ctx context.Context, svc *workbook.Service, sheet, agent string, rows int64) error {
	res, err := svc.ReserveRows(sheet, rows, agent)
	if err != nil {
		return fmt.Errorf("%s reserve: %w", agent, err)
	}
	records := make([]core.Record, rows)
	for i := range records {
		records[i] = core.Record{agent, res.StartRow + int64(i)}
	}
	if _, err := svc.WriteToReservation(ctx, res.ID, records); err != nil {
		return fmt.Errorf("%s fill: %w", agent, err)
	}
	return nil
}

func appendDirect(ctx context.Context, svc *workbook.Service, sheet, agent string, rows int64) error {
	records := make([]core.Record, rows)
	for i := range records {
		records[i] = core.Record{agent, i}
	}
	result, err := svc.AppendRecords(ctx, workbook.AppendRequest{
		Sheet:   sheet,
		Records: records,
		AgentID: agent,
	})
	if err != nil {
		return fmt.Errorf("%s append: %w", agent, err)
	}
	if !result.Cancelled && result.RowsWritten != rows {
		return fmt.Errorf("%s wrote %d rows, want %d", agent, result.RowsWritten, rows)
	}
	return nil
}
