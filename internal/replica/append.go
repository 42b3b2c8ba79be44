package replica

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/segment"
	"github.com/roach88/plos/internal/value"
)

// Argument errors for the append operations.
var (
	ErrEmptyName   = errors.New("replica: name must not be empty")
	ErrEmptyEntity = errors.New("replica: entity id must not be empty")
	ErrEmptyField  = errors.New("replica: field must not be empty")
)

// Appended is the outcome of a local append.
type Appended struct {
	Event event.Event
	// Sealed is set when the append pushed the buffer over the seal
	// threshold.
	Sealed *segment.Sealed
}

// Create appends an EntityCreated event for a fresh entity named name.
func (r *Replica) Create(ctx context.Context, name string) (Appended, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Appended{}, ErrEmptyName
	}
	now := r.now()
	payload := value.Object{
		"name":      value.String(name),
		"status":    value.String("active"),
		"createdAt": value.Number(float64(now)),
	}
	return r.append(ctx, event.EntityCreated, r.ids.NewID(), payload, now)
}

// Update appends a StateUpdated event setting field to v.
func (r *Replica) Update(ctx context.Context, entityID, field string, v value.Value) (Appended, error) {
	if entityID == "" {
		return Appended{}, ErrEmptyEntity
	}
	if field == "" {
		return Appended{}, ErrEmptyField
	}
	return r.append(ctx, event.StateUpdated, entityID, value.Object{field: v}, r.now())
}

// Resolve appends a ConflictResolved event choosing chosenEventID's value
// for (entityID, field). The chosen event is not required to exist; a
// missing target leaves the default winner in place.
func (r *Replica) Resolve(ctx context.Context, entityID, field, chosenEventID string) (Appended, error) {
	if entityID == "" {
		return Appended{}, ErrEmptyEntity
	}
	if field == "" {
		return Appended{}, ErrEmptyField
	}
	if chosenEventID == "" {
		return Appended{}, errors.New("replica: chosen event id must not be empty")
	}
	payload := value.Object{
		"field":         value.String(field),
		"chosenEventId": value.String(chosenEventID),
	}
	return r.append(ctx, event.ConflictResolved, entityID, payload, r.now())
}

// Relate appends a RelationAdded event. The relation object must carry an
// id so it can later be removed.
func (r *Replica) Relate(ctx context.Context, entityID string, relation value.Object) (Appended, error) {
	if entityID == "" {
		return Appended{}, ErrEmptyEntity
	}
	if _, ok := relation["id"]; !ok {
		return Appended{}, errors.New("replica: relation needs an id")
	}
	return r.append(ctx, event.RelationAdded, entityID, relation, r.now())
}

// Unrelate appends a RelationRemoved event for the relation with relationID.
func (r *Replica) Unrelate(ctx context.Context, entityID, relationID string) (Appended, error) {
	if entityID == "" {
		return Appended{}, ErrEmptyEntity
	}
	return r.append(ctx, event.RelationRemoved, entityID, value.Object{"id": value.String(relationID)}, r.now())
}

// Record appends a MetricRecorded event.
func (r *Replica) Record(ctx context.Context, entityID string, metric value.Object) (Appended, error) {
	if entityID == "" {
		return Appended{}, ErrEmptyEntity
	}
	return r.append(ctx, event.MetricRecorded, entityID, metric, r.now())
}

// append stamps, persists and indexes one event, then seals if the buffer
// is full.
func (r *Replica) append(ctx context.Context, kind event.Type, entityID string, payload value.Object, ts int64) (Appended, error) {
	if err := ctx.Err(); err != nil {
		return Appended{}, err
	}

	stamp, err := r.meta.Allocate()
	if err != nil {
		return Appended{}, fmt.Errorf("allocate seq: %w", err)
	}
	e := event.NewWithID(r.ids.NewID(), kind, entityID, payload, ts, stamp)

	if err := r.log.AppendBuffer(e); err != nil {
		return Appended{}, err
	}
	r.metrics.EventsAppended.WithLabelValues(string(kind)).Inc()
	r.logger.Debug("appended event",
		"id", e.ID,
		"type", string(e.Type),
		"entity", e.EntityID,
		"origin", e.Origin,
		"seq", e.Seq,
	)

	if err := r.indexEvents(ctx, []event.Event{e}, ""); err != nil {
		return Appended{}, err
	}

	sealed, err := r.MaybeSeal(ctx)
	if err != nil {
		return Appended{}, err
	}
	return Appended{Event: e, Sealed: sealed}, nil
}
