package deliveries

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	recordsCollection = "delivery_records"
	itemsCollection   = "inventory_items"
)

type recordDocument struct {
	ID                string    `bson:"_id"`
	InventoryItemID   string    `bson:"inventory_item_id"`
	Barcode           string    `bson:"barcode"`
	ItemName          string    `bson:"item_name"`
	CustomerName      string    `bson:"customer_name"`
	QuantityDelivered int       `bson:"quantity_delivered"`
	DeliveredBy       string    `bson:"delivered_by"`
	Notes             string    `bson:"notes"`
	DeliveredAt       time.Time `bson:"delivered_at"`
	CreatedAt         time.Time `bson:"created_at"`
	UpdatedAt         time.Time `bson:"updated_at"`
}

func toRecordDocument(rec *models.DeliveryRecord) recordDocument {
	return recordDocument{
		ID:                rec.ID.String(),
		InventoryItemID:   rec.InventoryItemID.String(),
		Barcode:           rec.Barcode,
		ItemName:          rec.ItemName,
		CustomerName:      rec.CustomerName,
		QuantityDelivered: rec.QuantityDelivered,
		DeliveredBy:       rec.DeliveredBy.String(),
		Notes:             rec.Notes,
		DeliveredAt:       rec.DeliveredAt,
		CreatedAt:         rec.CreatedAt,
		UpdatedAt:         rec.UpdatedAt,
	}
}

func (d recordDocument) model() (*models.DeliveryRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	itemID, err := uuid.Parse(d.InventoryItemID)
	if err != nil {
		return nil, err
	}
	by, err := uuid.Parse(d.DeliveredBy)
	if err != nil {
		return nil, err
	}
	return &models.DeliveryRecord{
		ID:                id,
		InventoryItemID:   itemID,
		Barcode:           d.Barcode,
		ItemName:          d.ItemName,
		CustomerName:      d.CustomerName,
		QuantityDelivered: d.QuantityDelivered,
		DeliveredBy:       by,
		Notes:             d.Notes,
		DeliveredAt:       d.DeliveredAt,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}, nil
}

// MongoRepository stores delivery records in MongoDB.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(recordsCollection)}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "inventory_item_id", Value: 1}}},
		{Keys: bson.D{{Key: "delivered_by", Value: 1}}},
		{Keys: bson.D{{Key: "delivered_at", Value: -1}, {Key: "_id", Value: -1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: ensure delivery indexes")
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, rec *models.DeliveryRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	now := time.Now().UTC()
	if rec.DeliveredAt.IsZero() {
		rec.DeliveredAt = now
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	if rec.UpdatedAt.IsZero() {
		rec.UpdatedAt = now
	}
	if _, err := r.collection.InsertOne(ctx, toRecordDocument(rec)); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: create delivery record")
	}
	return nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRecord, error) {
	var doc recordDocument
	if err := r.collection.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, recordNotFound(id)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: find delivery record")
	}
	rec, err := doc.model()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mongo: decode delivery record")
	}
	return rec, nil
}

func (r *MongoRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: delete delivery record")
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoRepository) UpdateIfQuantity(ctx context.Context, id uuid.UUID, expected int, fields Fields) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id.String(), "quantity_delivered": expected},
		bson.M{"$set": bson.M{
			"customer_name":      fields.CustomerName,
			"quantity_delivered": fields.QuantityDelivered,
			"notes":              fields.Notes,
			"updated_at":         time.Now().UTC(),
		}},
	)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: update delivery record")
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoRepository) List(ctx context.Context, query ListQuery) ([]models.DeliveryRecord, error) {
	filter := bson.M{}
	if query.InventoryItemID != nil {
		filter["inventory_item_id"] = query.InventoryItemID.String()
	}
	if name := strings.TrimSpace(query.CustomerName); name != "" {
		filter["customer_name"] = primitive.Regex{Pattern: regexp.QuoteMeta(name), Options: "i"}
	}
	if query.DeliveredBy != nil {
		filter["delivered_by"] = query.DeliveredBy.String()
	}
	window := bson.M{}
	if query.From != nil {
		window["$gte"] = query.From.UTC()
	}
	if query.To != nil {
		window["$lt"] = query.To.UTC()
	}
	if len(window) > 0 {
		filter["delivered_at"] = window
	}
	if query.Cursor != nil {
		at := query.Cursor.At.UTC()
		filter["$or"] = bson.A{
			bson.M{"delivered_at": bson.M{"$lt": at}},
			bson.M{"delivered_at": at, "_id": bson.M{"$lt": query.Cursor.ID.String()}},
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "delivered_at", Value: -1}, {Key: "_id", Value: -1}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: list delivery records")
	}
	defer cursor.Close(ctx)

	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: list delivery records")
	}
	rows := make([]models.DeliveryRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := doc.model()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mongo: decode delivery record")
		}
		rows = append(rows, *rec)
	}
	return rows, nil
}

func (r *MongoRepository) CountDangling(ctx context.Context) (int64, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from":         itemsCollection,
			"localField":   "inventory_item_id",
			"foreignField": "_id",
			"as":           "item",
		}}},
		{{Key: "$match", Value: bson.M{"item": bson.M{"$size": 0}}}},
		{{Key: "$count", Value: "dangling"}},
	}
	cursor, err := r.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: count dangling deliveries")
	}
	defer cursor.Close(ctx)

	var out []struct {
		Dangling int64 `bson:"dangling"`
	}
	if err := cursor.All(ctx, &out); err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: count dangling deliveries")
	}
	if len(out) == 0 {
		return 0, nil
	}
	return out[0].Dangling, nil
}

var (
	_ Repository = (*GormRepository)(nil)
	_ Repository = (*MongoRepository)(nil)
)
