package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fulfillment/internal/core"
	"fulfillment/internal/logging"
)

type appService struct {
	store    core.Store
	services *core.Services
	cache    ProgressCache
	logger   *zap.Logger
}

// NewAppService constructs an appService that satisfies ApplicationService.
// cache may be nil.
func NewAppService(store core.Store, services *core.Services, cache ProgressCache, logger *zap.Logger) ApplicationService {
	return &appService{
		store:    store,
		services: services,
		cache:    cache,
		logger:   logging.OrNop(logger),
	}
}

// SubmitScan records a scan and drops the cached projection when the ledger changed.
func (s *appService) SubmitScan(ctx context.Context, req SubmitScanRequest) (*ScanResult, error) {
	log := logging.WithContext(ctx, s.logger).With(
		zap.String(logging.FieldOrderID, req.OrderID),
		zap.String(logging.FieldBarcode, req.Barcode),
		zap.String(logging.FieldOperatorID, req.OperatorID),
	)

	res, err := s.services.Tracker.Accept(ctx, core.ScanRequest{
		OrderID:    req.OrderID,
		Barcode:    req.Barcode,
		OperatorID: req.OperatorID,
	})
	if err != nil {
		if core.Retryable(err) {
			log.Warn("scan not recorded, retry allowed", zap.Error(err))
		} else {
			log.Info("scan rejected", zap.Error(err))
		}
		return nil, err
	}

	if res.Outcome == core.OutcomeAccepted {
		s.invalidate(ctx, req.OrderID)
		fields := []zap.Field{
			zap.String(logging.FieldOutcome, string(res.Outcome)),
			zap.String("order_item_id", res.OrderItemID),
			zap.Int("count", res.Count),
			zap.Int("quantity", res.Quantity),
		}
		if res.NeedsReview {
			log.Warn("scan accepted by fallback, needs review", fields...)
		} else {
			log.Info("scan accepted", fields...)
		}
	} else {
		log.Info("scan not accepted", zap.String(logging.FieldOutcome, string(res.Outcome)), zap.String("reason", res.Reason))
	}
	return &ScanResult{Result: res}, nil
}

// GetProgress reads through the cache when one is configured. The cache generation is
// taken before the ledger is projected, so a scan accepted in between keeps the
// stale projection out of the cache.
func (s *appService) GetProgress(ctx context.Context, orderID string) (*ProgressResult, error) {
	cacheable := false
	var generation int64
	if s.cache != nil {
		progress, ok, err := s.cache.Get(ctx, orderID)
		switch {
		case err != nil:
			s.logger.Warn("progress cache read failed", zap.String(logging.FieldOrderID, orderID), zap.Error(err))
		case ok:
			return &ProgressResult{Progress: progress, Cached: true}, nil
		default:
			generation, err = s.cache.Generation(ctx, orderID)
			if err != nil {
				s.logger.Warn("progress cache generation read failed", zap.String(logging.FieldOrderID, orderID), zap.Error(err))
			} else {
				cacheable = true
			}
		}
	}

	progress, err := s.services.Tracker.Progress(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if cacheable {
		written, err := s.cache.Set(ctx, progress, generation)
		switch {
		case err != nil:
			s.logger.Warn("progress cache write failed", zap.String(logging.FieldOrderID, orderID), zap.Error(err))
		case !written:
			s.logger.Debug("progress changed while projecting, not cached", zap.String(logging.FieldOrderID, orderID))
		}
	}
	return &ProgressResult{Progress: progress}, nil
}

func (s *appService) ListScans(ctx context.Context, orderID string) (*ScanListResult, error) {
	if _, err := s.store.GetOrder(ctx, orderID); err != nil {
		return nil, err
	}
	records, err := s.services.Ledger.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &ScanListResult{OrderID: orderID, Records: records}, nil
}

func (s *appService) FinalizeShipment(ctx context.Context, orderID string) (*ShipmentResult, error) {
	log := logging.WithContext(ctx, s.logger).With(zap.String(logging.FieldOrderID, orderID))

	shipment, err := s.services.Finalizer.Finalize(ctx, orderID)
	if err != nil {
		var incomplete *core.OrderIncompleteError
		if errors.As(err, &incomplete) {
			log.Info("finalize refused, order incomplete", zap.Strings("missing_item_ids", incomplete.MissingItemIDs))
		} else {
			log.Warn("finalize failed", zap.Error(err))
		}
		return nil, err
	}
	s.invalidate(ctx, orderID)
	log.Info("shipment finalized", zap.String("shipment_id", shipment.ID), zap.Int("units", len(shipment.Bindings)))
	return &ShipmentResult{Shipment: shipment}, nil
}

func (s *appService) GetShipment(ctx context.Context, orderID string) (*ShipmentResult, error) {
	shipment, err := s.store.GetShipmentByOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &ShipmentResult{Shipment: shipment}, nil
}

func (s *appService) GetOrder(ctx context.Context, orderID string) (*OrderResult, error) {
	order, err := s.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderResult{Order: order}, nil
}

// CreateOrder assigns missing ids and positions, then stores the order as open.
func (s *appService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderResult, error) {
	order := core.Order{
		ID:          strings.TrimSpace(req.ID),
		OrderNumber: strings.TrimSpace(req.OrderNumber),
		CustomerRef: req.CustomerRef,
		Note:        req.Note,
		Status:      core.OrderOpen,
	}
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.OrderNumber == "" {
		order.OrderNumber = order.ID
	}
	for i, in := range req.Items {
		id := strings.TrimSpace(in.ID)
		if id == "" {
			id = fmt.Sprintf("%s-%d", order.ID, i+1)
		}
		order.Items = append(order.Items, core.OrderItem{
			ID:           id,
			OrderID:      order.ID,
			Position:     i + 1,
			TypeTag:      strings.TrimSpace(in.TypeTag),
			ProductLabel: in.ProductLabel,
			Quantity:     in.Quantity,
			Width:        in.Width,
			Length:       in.Length,
			Weight:       in.Weight,
		})
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	s.logger.Info("order created", zap.String(logging.FieldOrderID, order.ID), zap.Int("items", len(order.Items)))
	return s.GetOrder(ctx, order.ID)
}

func (s *appService) RegisterUnit(ctx context.Context, req RegisterUnitRequest) (*UnitResult, error) {
	barcode := strings.TrimSpace(req.Barcode)
	if barcode == "" {
		return nil, errors.New("barcode is required")
	}
	unit := core.InventoryUnit{
		ID:        uuid.NewString(),
		Barcode:   barcode,
		Kind:      core.UnitSubdivided,
		Category:  strings.TrimSpace(req.Category),
		Inspected: req.Inspected,
		Remaining: req.Remaining,
	}
	if req.Bulk {
		unit.Kind = core.UnitBulk
	}
	if err := s.store.AddUnit(ctx, unit); err != nil {
		return nil, err
	}
	stored, err := s.store.LookupByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	return &UnitResult{Unit: stored}, nil
}

func (s *appService) invalidate(ctx context.Context, orderID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, orderID); err != nil {
		s.logger.Warn("progress cache invalidate failed", zap.String(logging.FieldOrderID, orderID), zap.Error(err))
	}
}
