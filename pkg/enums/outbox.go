package enums

import "fmt"

// OutboxAggregateType identifies which entity an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateProduct       OutboxAggregateType = "product"
	AggregateStockLocation OutboxAggregateType = "stock_location"
	AggregateStockGroup    OutboxAggregateType = "stock_group"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateProduct,
	AggregateStockLocation,
	AggregateStockGroup,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType enumerates the events the sync pipeline understands.
type OutboxEventType string

const (
	EventStockLevelChanged    OutboxEventType = "stock_level_changed"
	EventStockLocationDeleted OutboxEventType = "stock_location_deleted"
)

var validOutboxEventTypes = []OutboxEventType{
	EventStockLevelChanged,
	EventStockLocationDeleted,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
