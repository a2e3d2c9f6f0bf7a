package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"fulfillment/internal/adapters/display"
	"fulfillment/internal/app"
	"fulfillment/internal/core"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scan <order-id> <barcode>...",
		Short: "Record one or more scans against an order",
		Args:  requireArgs(2, "scan <order-id> <barcode>..."),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			failed := false
			for _, barcode := range args[1:] {
				res, err := rt.Service.SubmitScan(cmd.Context(), app.SubmitScanRequest{
					OrderID:    args[0],
					Barcode:    barcode,
					OperatorID: ctx.operatorFlag,
				})
				if err != nil {
					return err
				}
				display.ScanResult(out, res.Result)
				if res.Result.Outcome != core.OutcomeAccepted && res.Result.Outcome != core.OutcomeAlreadyScanned {
					failed = true
				}
			}
			if failed {
				return errScanFailures
			}
			return nil
		},
	}
}

func newProgressCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "progress <order-id>",
		Short: "Show per-item scan status",
		Args:  requireArgs(1, "progress <order-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.Service.GetProgress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			display.Progress(cmd.OutOrStdout(), result.Progress)
			return nil
		},
	}
}

func newScansCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "scans <order-id>",
		Short: "List accepted scans of an order",
		Args:  requireArgs(1, "scans <order-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.Service.ListScans(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			display.Scans(cmd.OutOrStdout(), result.Records)
			return nil
		},
	}
}

func newFinalizeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "finalize <order-id>",
		Short: "Ship a fully scanned order",
		Args:  requireArgs(1, "finalize <order-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.Service.FinalizeShipment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			display.Shipment(cmd.OutOrStdout(), result.Shipment)
			return nil
		},
	}
}

func newShipmentCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "shipment <order-id>",
		Short: "Show the shipment of a finalized order",
		Args:  requireArgs(1, "shipment <order-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			result, err := rt.Service.GetShipment(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("order %s: %w", args[0], err)
			}
			display.Shipment(cmd.OutOrStdout(), result.Shipment)
			return nil
		},
	}
}
