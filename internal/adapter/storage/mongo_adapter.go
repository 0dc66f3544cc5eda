package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/rl1809/event-inventory/internal/core/domain"
	"github.com/rl1809/event-inventory/internal/port"
)

const (
	itemsCollection     = "stockItems"
	eventsCollection    = "events"
	movementsCollection = "inventoryMovements"
)

type itemDocument struct {
	ID                string    `bson:"_id"`
	Name              string    `bson:"name"`
	Category          string    `bson:"category"`
	TotalQuantity     int       `bson:"total_quantity"`
	AvailableQuantity int       `bson:"available_quantity"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

type clientDocument struct {
	Name  string `bson:"name"`
	Phone string `bson:"phone"`
	Email string `bson:"email"`
}

type geoDocument struct {
	Lat float64 `bson:"lat"`
	Lng float64 `bson:"lng"`
}

type assignmentDocument struct {
	ItemID   string `bson:"item_id"`
	Quantity int    `bson:"quantity"`
}

type eventDocument struct {
	ID                string               `bson:"_id"`
	OwnerUID          string               `bson:"owner_uid"`
	Service           string               `bson:"service"`
	Date              string               `bson:"date"`
	StartTime         string               `bson:"start_time"`
	EndTime           string               `bson:"end_time"`
	City              string               `bson:"city"`
	Client            clientDocument       `bson:"client"`
	Location          *geoDocument         `bson:"location,omitempty"`
	AssignedInventory []assignmentDocument `bson:"assigned_inventory"`
	CreatedAt         time.Time            `bson:"created_at"`
	UpdatedAt         time.Time            `bson:"updated_at"`
}

type movementDocument struct {
	ID            string    `bson:"_id"`
	ItemID        string    `bson:"item_id"`
	QuantityMoved int       `bson:"quantity_moved"`
	MovementType  string    `bson:"movement_type"`
	EventID       string    `bson:"event_id"`
	CreatedAt     time.Time `bson:"created_at"`
}

// MongoStore implements port.Store on a MongoDB replica set. Reservations run
// in multi-document snapshot transactions; write conflicts surface as
// transient errors that the driver retries.
type MongoStore struct {
	client    *mongo.Client
	items     *mongo.Collection
	events    *mongo.Collection
	movements *mongo.Collection
	now       func() time.Time
}

func OpenMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:    client,
		items:     db.Collection(itemsCollection),
		events:    db.Collection(eventsCollection),
		movements: db.Collection(movementsCollection),
		now:       time.Now,
	}

	_, err = store.movements.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "item_id", Value: 1}}},
		{Keys: bson.D{{Key: "event_id", Value: 1}}},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("create movement indexes: %w", err)
	}
	return store, nil
}

func (m *MongoStore) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoStore) WithinTx(ctx context.Context, fn func(ctx context.Context, scope port.TxScope) error) error {
	session, err := m.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, mongoScope{store: m})
	}, opts)
	if err != nil && isTransientTransactionError(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransactionConflict, err)
	}
	return err
}

func isTransientTransactionError(err error) bool {
	var labeled mongo.LabeledError
	if errors.As(err, &labeled) {
		return labeled.HasErrorLabel("TransientTransactionError") ||
			labeled.HasErrorLabel("UnknownTransactionCommitResult")
	}
	return false
}

type mongoScope struct{ store *MongoStore }

func (sc mongoScope) Stock() port.StockLedger   { return mongoLedger(sc) }
func (sc mongoScope) Events() port.EventRecords { return mongoEventRecords(sc) }

type mongoLedger struct{ store *MongoStore }

func (l mongoLedger) Get(ctx context.Context, itemID string) (domain.StockItem, error) {
	return l.store.GetItem(ctx, itemID)
}

// Adjust only matches while the result stays non-negative.
func (l mongoLedger) Adjust(ctx context.Context, itemID string, delta int) error {
	filter := bson.M{"_id": itemID}
	if delta < 0 {
		filter["available_quantity"] = bson.M{"$gte": -delta}
	}
	update := bson.M{
		"$inc": bson.M{"available_quantity": delta},
		"$set": bson.M{"updated_at": l.store.now().UTC()},
	}
	result, err := l.store.items.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("adjust item %s: %w", itemID, err)
	}
	if result.MatchedCount == 0 {
		if _, err := l.store.GetItem(ctx, itemID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrInsufficientStock, itemID)
	}
	return nil
}

type mongoEventRecords struct{ store *MongoStore }

func (r mongoEventRecords) Get(ctx context.Context, eventID string) (domain.Event, error) {
	return r.store.GetEvent(ctx, eventID)
}

func (r mongoEventRecords) SetAssignments(ctx context.Context, eventID string, assignments []domain.EventAssignment) error {
	if err := domain.ValidateAssignments(assignments); err != nil {
		return err
	}
	docs := make([]assignmentDocument, 0, len(assignments))
	for _, a := range assignments {
		docs = append(docs, assignmentDocument{ItemID: a.ItemID, Quantity: a.Quantity})
	}
	result, err := r.store.events.UpdateOne(ctx,
		bson.M{"_id": eventID},
		bson.M{"$set": bson.M{"assigned_inventory": docs, "updated_at": r.store.now().UTC()}},
	)
	if err != nil {
		return fmt.Errorf("update assignments %s: %w", eventID, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	return nil
}

func (r mongoEventRecords) Delete(ctx context.Context, eventID string) error {
	result, err := r.store.events.DeleteOne(ctx, bson.M{
		"_id":                eventID,
		"assigned_inventory": bson.M{"$size": 0},
	})
	if err != nil {
		return fmt.Errorf("delete event %s: %w", eventID, err)
	}
	if result.DeletedCount == 0 {
		if _, err := r.store.GetEvent(ctx, eventID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", domain.ErrEventHasInventory, eventID)
	}
	return nil
}

func (m *MongoStore) ListItems(ctx context.Context) ([]domain.StockItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "category", Value: 1}, {Key: "name", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.items.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	var docs []itemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode items: %w", err)
	}
	items := make([]domain.StockItem, 0, len(docs))
	for _, d := range docs {
		items = append(items, d.toDomain())
	}
	return items, nil
}

func (m *MongoStore) GetItem(ctx context.Context, itemID string) (domain.StockItem, error) {
	var doc itemDocument
	err := m.items.FindOne(ctx, bson.M{"_id": itemID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.StockItem{}, fmt.Errorf("%w: %s", domain.ErrItemNotFound, itemID)
	}
	if err != nil {
		return domain.StockItem{}, fmt.Errorf("find item %s: %w", itemID, err)
	}
	return doc.toDomain(), nil
}

func (m *MongoStore) CreateItem(ctx context.Context, item domain.StockItem) error {
	if item.TotalQuantity < 0 {
		return fmt.Errorf("%w: negative total for %s", domain.ErrInvalidQuantity, item.ID)
	}
	now := m.now().UTC()
	_, err := m.items.InsertOne(ctx, itemDocument{
		ID:                item.ID,
		Name:              item.Name,
		Category:          item.Category,
		TotalQuantity:     item.TotalQuantity,
		AvailableQuantity: item.TotalQuantity,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("%w: %s", domain.ErrItemExists, item.ID)
	}
	if err != nil {
		return fmt.Errorf("insert item %s: %w", item.ID, err)
	}
	return nil
}

func (m *MongoStore) CreateEvent(ctx context.Context, event domain.Event) error {
	if err := domain.ValidateAssignments(event.AssignedInventory); err != nil {
		return err
	}
	if _, err := m.events.InsertOne(ctx, newEventDocument(event)); err != nil {
		return fmt.Errorf("insert event %s: %w", event.ID, err)
	}
	return nil
}

func (m *MongoStore) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	var doc eventDocument
	err := m.events.FindOne(ctx, bson.M{"_id": eventID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("find event %s: %w", eventID, err)
	}
	return doc.toDomain()
}

func (m *MongoStore) ListEvents(ctx context.Context) ([]domain.Event, error) {
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "start_time", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.events.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	var docs []eventDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	events := make([]domain.Event, 0, len(docs))
	for _, d := range docs {
		ev, err := d.toDomain()
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func (m *MongoStore) UpdateEventDetails(ctx context.Context, eventID string, details domain.EventDetails) (domain.Event, error) {
	set := bson.M{
		"service":    details.Service,
		"date":       details.Date,
		"start_time": details.StartTime,
		"end_time":   details.EndTime,
		"city":       details.City,
		"client":     clientDocument{Name: details.Client.Name, Phone: details.Client.Phone, Email: details.Client.Email},
		"updated_at": m.now().UTC(),
	}
	update := bson.M{"$set": set}
	if details.Location != nil {
		set["location"] = geoDocument{Lat: details.Location.Lat, Lng: details.Location.Lng}
	} else {
		update["$unset"] = bson.M{"location": ""}
	}

	var doc eventDocument
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := m.events.FindOneAndUpdate(ctx, bson.M{"_id": eventID}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Event{}, fmt.Errorf("%w: %s", domain.ErrEventNotFound, eventID)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("update event %s: %w", eventID, err)
	}
	return doc.toDomain()
}

func (m *MongoStore) Append(ctx context.Context, record domain.MovementRecord) error {
	if !record.MovementType.Valid() {
		return fmt.Errorf("invalid movement type %q", record.MovementType)
	}
	_, err := m.movements.InsertOne(ctx, movementDocument{
		ID:            record.ID,
		ItemID:        record.ItemID,
		QuantityMoved: record.QuantityMoved,
		MovementType:  string(record.MovementType),
		EventID:       record.EventID,
		CreatedAt:     record.Timestamp.UTC(),
	})
	if err != nil {
		return fmt.Errorf("insert movement %s: %w", record.ID, err)
	}
	return nil
}

func (m *MongoStore) ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.MovementRecord, error) {
	query := bson.M{}
	if filter.ItemID != "" {
		query["item_id"] = filter.ItemID
	}
	if filter.EventID != "" {
		query["event_id"] = filter.EventID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(movementLimit(filter.Limit)))

	cursor, err := m.movements.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	var docs []movementDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode movements: %w", err)
	}
	out := make([]domain.MovementRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.MovementRecord{
			ID:            d.ID,
			ItemID:        d.ItemID,
			QuantityMoved: d.QuantityMoved,
			MovementType:  domain.MovementType(d.MovementType),
			EventID:       d.EventID,
			Timestamp:     d.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (m *MongoStore) MovementTotals(ctx context.Context) (map[string]domain.MovementTotals, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "item_id", Value: "$item_id"},
				{Key: "movement_type", Value: "$movement_type"},
			}},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$quantity_moved"}}},
		}}},
	}
	cursor, err := m.movements.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("sum movements: %w", err)
	}
	var rows []struct {
		Key struct {
			ItemID       string `bson:"item_id"`
			MovementType string `bson:"movement_type"`
		} `bson:"_id"`
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode movement totals: %w", err)
	}

	totals := make(map[string]domain.MovementTotals)
	for _, r := range rows {
		t := totals[r.Key.ItemID]
		switch domain.MovementType(r.Key.MovementType) {
		case domain.MovementTypeAssign:
			t.Assigned += int(r.Total)
		case domain.MovementTypeRelease:
			t.Released += int(r.Total)
		}
		totals[r.Key.ItemID] = t
	}
	return totals, nil
}

func (d itemDocument) toDomain() domain.StockItem {
	return domain.StockItem{
		ID:                d.ID,
		Name:              d.Name,
		Category:          d.Category,
		TotalQuantity:     d.TotalQuantity,
		AvailableQuantity: d.AvailableQuantity,
		CreatedAt:         d.CreatedAt.UTC(),
		UpdatedAt:         d.UpdatedAt.UTC(),
	}
}

func newEventDocument(e domain.Event) eventDocument {
	doc := eventDocument{
		ID:                e.ID,
		OwnerUID:          e.OwnerUID,
		Service:           e.Service,
		Date:              e.Date,
		StartTime:         e.StartTime,
		EndTime:           e.EndTime,
		City:              e.City,
		Client:            clientDocument{Name: e.Client.Name, Phone: e.Client.Phone, Email: e.Client.Email},
		AssignedInventory: make([]assignmentDocument, 0, len(e.AssignedInventory)),
		CreatedAt:         e.CreatedAt.UTC(),
		UpdatedAt:         e.UpdatedAt.UTC(),
	}
	if e.Location != nil {
		doc.Location = &geoDocument{Lat: e.Location.Lat, Lng: e.Location.Lng}
	}
	for _, a := range e.AssignedInventory {
		doc.AssignedInventory = append(doc.AssignedInventory, assignmentDocument{ItemID: a.ItemID, Quantity: a.Quantity})
	}
	return doc
}

func (d eventDocument) toDomain() (domain.Event, error) {
	ev := domain.Event{
		ID:       d.ID,
		OwnerUID: d.OwnerUID,
		EventDetails: domain.EventDetails{
			Service:   d.Service,
			Date:      d.Date,
			StartTime: d.StartTime,
			EndTime:   d.EndTime,
			City:      d.City,
			Client:    domain.Client{Name: d.Client.Name, Phone: d.Client.Phone, Email: d.Client.Email},
		},
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
	}
	if d.Location != nil {
		ev.Location = &domain.GeoPoint{Lat: d.Location.Lat, Lng: d.Location.Lng}
	}
	for _, a := range d.AssignedInventory {
		ev.AssignedInventory = append(ev.AssignedInventory, domain.EventAssignment{ItemID: a.ItemID, Quantity: a.Quantity})
	}
	if err := domain.ValidateAssignments(ev.AssignedInventory); err != nil {
		return domain.Event{}, fmt.Errorf("event %s stored assignments: %w", d.ID, err)
	}
	return ev, nil
}
