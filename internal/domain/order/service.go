package order

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/storefront/internal/domain/product"
)

// Sentinel errors for order validation.
var (
	ErrEmptyItems   = errors.New("items required")
	ErrUserRequired = errors.New("user required")
)

// ProductNotFoundError indicates a requested product does not exist.
type ProductNotFoundError struct {
	ProductID string
}

func (e *ProductNotFoundError) Error() string {
	return fmt.Sprintf("product %s not found", e.ProductID)
}

// InvalidQuantityError indicates a line item has a non-positive quantity.
type InvalidQuantityError struct {
	ProductID string
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be greater than 0 for product %s", e.ProductID)
}

// ProductLookup is the read side of the catalog needed to price an order.
// Missing ids are simply absent from the result.
type ProductLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]product.Product, error)
}

// PlaceOrderRequest holds the input for placing an order.
type PlaceOrderRequest struct {
	UserID string
	Items  []CartLine
}

// PlaceOrderResult holds the output of a successfully placed order.
type PlaceOrderResult struct {
	Order    *Order
	Products []product.Product
}

// Bounds for status notifications dispatched in the background.
const (
	defaultNotifyTimeout    = 10 * time.Second
	maxPendingNotifications = 64
)

// TransitionRequest asks for a status change of an order.
type TransitionRequest struct {
	OrderID              string
	Status               Status
	ExpectedDeliveryTime *time.Time
}

// Service encapsulates order placement and the order lifecycle.
type Service struct {
	products ProductLookup
	orders   Repository
	notifier Notifier

	now   func() time.Time
	newID func() string

	notifyTimeout time.Duration
	pending       chan struct{}
	inflight      sync.WaitGroup

	tracer      trace.Tracer
	placed      metric.Int64Counter
	transitions metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	products ProductLookup,
	orders Repository,
	notifier Notifier,
) *Service {
	meter := otel.Meter("storefront/order")
	placed, err := meter.Int64Counter("storefront.orders.placed",
		metric.WithDescription("Orders successfully placed"))
	if err != nil {
		otel.Handle(err)
	}
	transitions, err := meter.Int64Counter("storefront.orders.transitions",
		metric.WithDescription("Order status changes"))
	if err != nil {
		otel.Handle(err)
	}

	return &Service{
		products:    products,
		orders:      orders,
		notifier:    notifier,
		now:           time.Now,
		newID:         func() string { return uuid.New().String() },
		notifyTimeout: defaultNotifyTimeout,
		pending:       make(chan struct{}, maxPendingNotifications),
		tracer:        otel.Tracer("storefront/order"),
		placed:        placed,
		transitions:   transitions,
	}
}

// PlaceOrder validates items, fetches products in a single batch, prices every
// line through the product discount tiers, persists the order, and returns the
// result. A missing product aborts the whole order; nothing is stored.
func (s *Service) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*PlaceOrderResult, error) {
	ctx, span := s.tracer.Start(ctx, "order.PlaceOrder")
	defer span.End()

	if req.UserID == "" {
		return nil, ErrUserRequired
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	// Validate quantities and collect product IDs.
	ids := make([]string, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, &InvalidQuantityError{ProductID: item.ProductID}
		}
		ids[i] = item.ProductID
	}

	fetched, err := s.products.GetByIDs(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "get products")
	}

	productMap := make(map[string]product.Product, len(fetched))
	for _, p := range fetched {
		productMap[p.ID] = p
	}

	products := make([]product.Product, 0, len(req.Items))
	lines := make([]Line, 0, len(req.Items))
	for _, item := range req.Items {
		p, ok := productMap[item.ProductID]
		if !ok {
			return nil, &ProductNotFoundError{ProductID: item.ProductID}
		}
		products = append(products, p)
		lines = append(lines, Line{
			ProductID: p.ID,
			Quantity:  item.Quantity,
			UnitPrice: p.UnitPrice(item.Quantity),
		})
	}

	now := s.now()
	o := &Order{
		ID:        s.newID(),
		UserID:    req.UserID,
		Status:    StatusPending,
		Lines:     lines,
		Total:     SumLines(lines),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	span.SetAttributes(attribute.String("order.id", o.ID))
	s.placed.Add(ctx, 1)

	return &PlaceOrderResult{
		Order:    o,
		Products: products,
	}, nil
}

// Get returns a single order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	return s.orders.GetByID(ctx, id)
}

// List returns orders matching f, newest first.
func (s *Service) List(ctx context.Context, f Filter) ([]Order, error) {
	return s.orders.List(ctx, f)
}

// Delete removes an order administratively.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.orders.Delete(ctx, id)
}

// Transition moves an order to req.Status if the lifecycle allows it, stores
// the change and notifies the customer. The notification is best effort and
// is not awaited.
func (s *Service) Transition(ctx context.Context, req TransitionRequest) (*Order, error) {
	return s.changeStatus(ctx, "order.Transition", req, true)
}

// ForceStatus sets an order status without consulting the lifecycle graph.
// It exists for administrative corrections and is never used by Transition.
func (s *Service) ForceStatus(ctx context.Context, req TransitionRequest) (*Order, error) {
	return s.changeStatus(ctx, "order.ForceStatus", req, false)
}

func (s *Service) changeStatus(ctx context.Context, op string, req TransitionRequest, enforce bool) (*Order, error) {
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("order.id", req.OrderID),
		attribute.String("order.status", string(req.Status)),
	))
	defer span.End()

	if !req.Status.Valid() {
		return nil, errors.Wrapf(ErrUnknownStatus, "%q", req.Status)
	}
	if req.ExpectedDeliveryTime != nil && !req.Status.AcceptsDeliveryTime() {
		return nil, ErrDeliveryTimeNotAllowed
	}

	o, err := s.orders.GetByID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}

	from := o.Status
	if enforce && !from.CanTransition(req.Status) {
		return nil, &InvalidTransitionError{From: from, To: req.Status}
	}

	o.Status = req.Status
	if req.ExpectedDeliveryTime != nil {
		edt := req.ExpectedDeliveryTime.UTC()
		o.ExpectedDeliveryTime = &edt
	}
	o.UpdatedAt = s.now()

	if err := s.orders.Update(ctx, o); err != nil {
		return nil, errors.Wrapf(err, "update order %s", o.ID)
	}

	s.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(o.Status)),
		attribute.Bool("forced", !enforce),
	))
	s.notify(ctx, o)

	return o, nil
}

// notify tells the customer about the new status without holding up the
// caller. Delivery runs on a context detached from the request and bounded by
// notifyTimeout. Failures are logged and otherwise ignored: the status change
// has already been stored.
func (s *Service) notify(ctx context.Context, o *Order) {
	lg := zctx.From(ctx).With(zap.String("order_id", o.ID), zap.String("user_id", o.UserID))

	select {
	case s.pending <- struct{}{}:
	default:
		lg.Warn("Status notification dropped: too many in flight")
		return
	}

	userID, message := o.UserID, StatusMessage(o)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.notifyTimeout)
	s.inflight.Add(1)
	go func() {
		defer func() {
			cancel()
			<-s.pending
			s.inflight.Done()
		}()

		delivered, err := s.notifier.Notify(ctx, userID, message)
		switch {
		case err != nil:
			lg.Warn("Status notification failed", zap.Error(err))
		case !delivered:
			lg.Debug("Status notification not delivered: no channel for user")
		}
	}()
}

// Wait blocks until every status notification started so far has finished.
func (s *Service) Wait() {
	s.inflight.Wait()
}

// StatusMessage renders the customer notification for the current status of o.
func StatusMessage(o *Order) string {
	msg := fmt.Sprintf("Order #%s status changed to %s", ShortID(o.ID), o.Status.Label())
	if o.ExpectedDeliveryTime != nil && !o.Status.Terminal() {
		msg += fmt.Sprintf(". Expected delivery: %s", o.ExpectedDeliveryTime.Format(time.DateOnly))
	}
	return msg
}

// ShortID returns the last six characters of an order id, as shown to customers.
func ShortID(id string) string {
	if len(id) <= 6 {
		return id
	}
	return id[len(id)-6:]
}
