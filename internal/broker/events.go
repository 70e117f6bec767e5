package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"pos-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleCompleted publishes SaleCompleted event
func (ep *EventPublisher) PublishSaleCompleted(ctx context.Context, event *models.SaleCompletedEvent) error {
	return ep.producer.PublishEvent(ctx, "sale-"+event.SaleID, event)
}

// PublishCatalogUpdated publishes CatalogUpdated event
func (ep *EventPublisher) PublishCatalogUpdated(ctx context.Context, event *models.CatalogUpdatedEvent) error {
	return ep.producer.PublishEvent(ctx, "product-"+event.ProductID, event)
}

// NoopPublisher drops every event. Used when Kafka is disabled.
type NoopPublisher struct{}

func (NoopPublisher) PublishSaleCompleted(context.Context, *models.SaleCompletedEvent) error {
	return nil
}

func (NoopPublisher) PublishCatalogUpdated(context.Context, *models.CatalogUpdatedEvent) error {
	return nil
}

// EventHandler routes incoming events to registered callbacks
type EventHandler struct {
	onSaleCompleted  func(context.Context, *models.SaleCompletedEvent) error
	onCatalogUpdated func(context.Context, *models.CatalogUpdatedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSaleCompleted registers a handler for SaleCompleted events
func (eh *EventHandler) OnSaleCompleted(handler func(context.Context, *models.SaleCompletedEvent) error) {
	eh.onSaleCompleted = handler
}

// OnCatalogUpdated registers a handler for CatalogUpdated events
func (eh *EventHandler) OnCatalogUpdated(handler func(context.Context, *models.CatalogUpdatedEvent) error) {
	eh.onCatalogUpdated = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypeSaleCompleted:
		if eh.onSaleCompleted != nil {
			var event models.SaleCompletedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SaleCompleted event: %w", err)
			}
			return eh.onSaleCompleted(ctx, &event)
		}

	case models.EventTypeCatalogUpdated:
		if eh.onCatalogUpdated != nil {
			var event models.CatalogUpdatedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal CatalogUpdated event: %w", err)
			}
			return eh.onCatalogUpdated(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}
