// Package station runs the interactive scan loop used at packing stations.
// Every line that does not start with "/" is a barcode; handheld scanners type
// the code followed by Enter.
package station

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"fulfillment/internal/adapters/display"
	"fulfillment/internal/app"
	"fulfillment/internal/core"
	"fulfillment/internal/logging"
)

// Options configures a station session.
type Options struct {
	OrderID    string
	OperatorID string
	// MaxRetries bounds automatic re-submission of scans whose ledger write failed.
	MaxRetries int
	RetryDelay time.Duration
	Logger     *zap.Logger
}

var errExit = errors.New("exit")

type session struct {
	ctx     context.Context
	svc     app.ApplicationService
	out     io.Writer
	opts    Options
	orderID string
	logger  *zap.Logger
}

// Run reads scans and slash commands from in until EOF or /exit.
func Run(ctx context.Context, svc app.ApplicationService, in io.Reader, out io.Writer, opts Options) error {
	s := &session{ctx: ctx, svc: svc, out: out, opts: opts, logger: logging.OrNop(opts.Logger)}

	fmt.Fprintln(out, "Scan station")
	fmt.Fprintln(out, "Scan a barcode, or use /help for commands.")
	fmt.Fprintln(out, strings.Repeat("-", 70))
	if opts.OrderID != "" {
		if err := s.selectOrder(opts.OrderID); err != nil {
			fmt.Fprintf(out, "Error: %v\n", err)
		}
	}

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, s.prompt())
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if err := s.dispatch(input); err != nil {
				if errors.Is(err, errExit) {
					fmt.Fprintln(out, "Goodbye!")
					return nil
				}
				fmt.Fprintf(out, "Error: %v\n", err)
			}
			continue
		}
		s.scan(input)
	}
}

func (s *session) prompt() string {
	if s.orderID == "" {
		return "\n> "
	}
	return fmt.Sprintf("\n[%s] > ", s.orderID)
}

func (s *session) dispatch(input string) error {
	tokens := strings.Fields(strings.TrimPrefix(input, "/"))
	if len(tokens) == 0 {
		return nil
	}
	cmd := strings.ToLower(tokens[0])
	args := tokens[1:]

	switch cmd {
	case "order", "o":
		if len(args) < 1 {
			fmt.Fprintln(s.out, "Usage: /order <order-id>")
			return nil
		}
		return s.selectOrder(args[0])

	case "progress", "p":
		if err := s.requireOrder(); err != nil {
			return err
		}
		result, err := s.svc.GetProgress(s.ctx, s.orderID)
		if err != nil {
			return err
		}
		display.Progress(s.out, result.Progress)

	case "scans":
		if err := s.requireOrder(); err != nil {
			return err
		}
		result, err := s.svc.ListScans(s.ctx, s.orderID)
		if err != nil {
			return err
		}
		display.Scans(s.out, result.Records)

	case "finalize", "ship":
		if err := s.requireOrder(); err != nil {
			return err
		}
		result, err := s.svc.FinalizeShipment(s.ctx, s.orderID)
		if err != nil {
			var incomplete *core.OrderIncompleteError
			if errors.As(err, &incomplete) {
				fmt.Fprintf(s.out, "Order %s is not complete. Missing items: %s\n",
					s.orderID, strings.Join(incomplete.MissingItemIDs, ", "))
				return nil
			}
			return err
		}
		display.Shipment(s.out, result.Shipment)

	case "help", "h":
		printHelp(s.out)

	case "exit", "quit", "e", "q":
		return errExit

	default:
		fmt.Fprintf(s.out, "Unknown command: /%s  (type /help for all commands)\n", cmd)
	}
	return nil
}

func (s *session) selectOrder(orderID string) error {
	result, err := s.svc.GetOrder(s.ctx, orderID)
	if err != nil {
		return err
	}
	s.orderID = result.Order.ID
	fmt.Fprintf(s.out, "Order %s selected (%d items, %s)\n", result.Order.OrderNumber, len(result.Order.Items), result.Order.Status)
	return nil
}

func (s *session) requireOrder() error {
	if s.orderID == "" {
		return errors.New("no order selected, use /order <order-id>")
	}
	return nil
}

// scan submits barcode, re-submitting only while the failure is retryable.
func (s *session) scan(barcode string) {
	if err := s.requireOrder(); err != nil {
		fmt.Fprintf(s.out, "Error: %v\n", err)
		return
	}

	req := app.SubmitScanRequest{OrderID: s.orderID, Barcode: barcode, OperatorID: s.opts.OperatorID}
	for attempt := 0; ; attempt++ {
		result, err := s.svc.SubmitScan(s.ctx, req)
		if err == nil {
			display.ScanResult(s.out, result.Result)
			if result.Result.Outcome == core.OutcomeAccepted {
				s.announceCompletion()
			}
			return
		}
		if !core.Retryable(err) || attempt >= s.opts.MaxRetries {
			fmt.Fprintf(s.out, "Error: %v\n", err)
			if core.Retryable(err) {
				fmt.Fprintln(s.out, "Scan was not recorded. Scan the barcode again.")
			}
			return
		}
		fmt.Fprintf(s.out, "Scan not recorded, retrying (%d/%d)...\n", attempt+1, s.opts.MaxRetries)
		s.logger.Warn("retrying scan", zap.String(logging.FieldBarcode, barcode), zap.Int("attempt", attempt+1), zap.Error(err))
		if s.opts.RetryDelay > 0 {
			select {
			case <-s.ctx.Done():
				fmt.Fprintf(s.out, "Error: %v\n", s.ctx.Err())
				return
			case <-time.After(s.opts.RetryDelay):
			}
		}
	}
}

func (s *session) announceCompletion() {
	result, err := s.svc.GetProgress(s.ctx, s.orderID)
	if err != nil {
		return
	}
	if result.Progress.Complete {
		fmt.Fprintln(s.out, "All items scanned. Use /finalize to ship the order.")
	}
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  <barcode>            record a scan for the selected order")
	fmt.Fprintln(w, "  /order <order-id>    select the order being packed")
	fmt.Fprintln(w, "  /progress            show per-item scan status")
	fmt.Fprintln(w, "  /scans               list accepted scans")
	fmt.Fprintln(w, "  /finalize            ship a fully scanned order")
	fmt.Fprintln(w, "  /help                show this help")
	fmt.Fprintln(w, "  /exit                leave the station")
}
