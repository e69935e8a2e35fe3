package inventory

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const itemsCollection = "inventory_items"

type itemDocument struct {
	ID          string               `bson:"_id"`
	ItemName    string               `bson:"item_name"`
	Category    string               `bson:"category"`
	Size        string               `bson:"size"`
	Color       string               `bson:"color"`
	Barcode     string               `bson:"barcode"`
	Quantity    int                  `bson:"quantity"`
	UnitPrice   primitive.Decimal128 `bson:"unit_price"`
	Description string               `bson:"description"`
	CreatedAt   time.Time            `bson:"created_at"`
	UpdatedAt   time.Time            `bson:"updated_at"`
}

func toItemDocument(item *models.InventoryItem) (itemDocument, error) {
	price, err := primitive.ParseDecimal128(item.UnitPrice.StringFixed(2))
	if err != nil {
		return itemDocument{}, err
	}
	return itemDocument{
		ID:          item.ID.String(),
		ItemName:    item.ItemName,
		Category:    item.Category.String(),
		Size:        item.Size,
		Color:       item.Color,
		Barcode:     item.Barcode,
		Quantity:    item.Quantity,
		UnitPrice:   price,
		Description: item.Description,
		CreatedAt:   item.CreatedAt,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}

func (d itemDocument) model() (*models.InventoryItem, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(d.UnitPrice.String())
	if err != nil {
		return nil, err
	}
	return &models.InventoryItem{
		ID:          id,
		ItemName:    d.ItemName,
		Category:    enums.ItemCategory(d.Category),
		Size:        d.Size,
		Color:       d.Color,
		Barcode:     d.Barcode,
		Quantity:    d.Quantity,
		UnitPrice:   price,
		Description: d.Description,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// MongoRepository stores inventory items in a MongoDB collection. Quantity
// changes are single-document $inc updates guarded by the filter.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection(itemsCollection)}
}

// EnsureIndexes creates the barcode and fingerprint unique indexes.
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "barcode", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(models.InventoryBarcodeConstraint),
		},
		{
			Keys: bson.D{
				{Key: "item_name", Value: 1},
				{Key: "category", Value: 1},
				{Key: "size", Value: 1},
				{Key: "color", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName(models.InventoryFingerprintConstraint),
		},
		{Keys: bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "quantity", Value: 1}}},
	}
	if _, err := r.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: ensure inventory indexes")
	}
	return nil
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M, notFound error, op string) (*models.InventoryItem, error) {
	var doc itemDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, notFound
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	item, err := doc.model()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mongo: decode inventory item")
	}
	return item, nil
}

func (r *MongoRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()}, NotFound(id), "mongo: find inventory item")
}

func (r *MongoRepository) FindByBarcode(ctx context.Context, code string) (*models.InventoryItem, error) {
	return r.findOne(ctx, bson.M{"barcode": code},
		pkgerrors.Newf(pkgerrors.CodeNotFound, "no inventory item with barcode %s", code),
		"mongo: find inventory item by barcode")
}

func (r *MongoRepository) FindByFingerprint(ctx context.Context, fp Fingerprint) (*models.InventoryItem, error) {
	filter := bson.M{
		"item_name": fp.ItemName,
		"category":  fp.Category.String(),
		"size":      fp.Size,
		"color":     fp.Color,
	}
	return r.findOne(ctx, filter, pkgerrors.New(pkgerrors.CodeNotFound, "inventory variant not found"), "mongo: find inventory variant")
}

func (r *MongoRepository) BarcodeExists(ctx context.Context, code string) (bool, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"barcode": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: check barcode")
	}
	return n > 0, nil
}

func (r *MongoRepository) Create(ctx context.Context, item *models.InventoryItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	doc, err := toItemDocument(item)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit price")
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		return translateMongoWriteError(err, "mongo: create inventory item")
	}
	return nil
}

func (r *MongoRepository) Update(ctx context.Context, item *models.InventoryItem) error {
	item.UpdatedAt = time.Now().UTC()
	price, err := primitive.ParseDecimal128(item.UnitPrice.StringFixed(2))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid unit price")
	}
	res, err := r.collection.UpdateOne(ctx, bson.M{"_id": item.ID.String()}, bson.M{"$set": bson.M{
		"item_name":   item.ItemName,
		"category":    item.Category.String(),
		"size":        item.Size,
		"color":       item.Color,
		"unit_price":  price,
		"description": item.Description,
		"updated_at":  item.UpdatedAt,
	}})
	if err != nil {
		return translateMongoWriteError(err, "mongo: update inventory item")
	}
	if res.MatchedCount == 0 {
		return NotFound(item.ID)
	}
	return nil
}

func (r *MongoRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.collection.DeleteOne(ctx, bson.M{"_id": id.String()})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: delete inventory item")
	}
	return res.DeletedCount > 0, nil
}

func (r *MongoRepository) List(ctx context.Context, query ListQuery) ([]models.InventoryItem, error) {
	filter := bson.M{}
	if query.Category != nil {
		filter["category"] = query.Category.String()
	}
	if term := strings.TrimSpace(query.Query); term != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(term), Options: "i"}
		filter["$or"] = bson.A{
			bson.M{"item_name": pattern},
			bson.M{"description": pattern},
			bson.M{"barcode": pattern},
		}
	}
	if query.LowStockBelow != nil {
		filter["quantity"] = bson.M{"$lt": *query.LowStockBelow}
	}
	if query.Cursor != nil {
		at := query.Cursor.At.UTC()
		filter["$and"] = bson.A{bson.M{"$or": bson.A{
			bson.M{"created_at": bson.M{"$lt": at}},
			bson.M{"created_at": at, "_id": bson.M{"$lt": query.Cursor.ID.String()}},
		}}}
	}

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if query.Limit > 0 {
		opts.SetLimit(int64(query.Limit))
	}
	return r.find(ctx, filter, opts, "mongo: list inventory items")
}

func (r *MongoRepository) ListLowStock(ctx context.Context, threshold int) ([]models.InventoryItem, error) {
	opts := options.Find().SetSort(bson.D{{Key: "quantity", Value: 1}, {Key: "item_name", Value: 1}})
	return r.find(ctx, bson.M{"quantity": bson.M{"$lte": threshold}}, opts, "mongo: list low stock items")
}

func (r *MongoRepository) find(ctx context.Context, filter bson.M, opts *options.FindOptions, op string) ([]models.InventoryItem, error) {
	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	defer cursor.Close(ctx)

	var docs []itemDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
	}
	rows := make([]models.InventoryItem, 0, len(docs))
	for _, doc := range docs {
		item, err := doc.model()
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mongo: decode inventory item")
		}
		rows = append(rows, *item)
	}
	return rows, nil
}

func (r *MongoRepository) IncrementQuantity(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$inc": bson.M{"quantity": n}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: increment inventory quantity")
	}
	return res.MatchedCount > 0, nil
}

func (r *MongoRepository) DecrementIfAvailable(ctx context.Context, id uuid.UUID, n int) (bool, error) {
	res, err := r.collection.UpdateOne(ctx,
		bson.M{"_id": id.String(), "quantity": bson.M{"$gte": n}},
		bson.M{"$inc": bson.M{"quantity": -n}, "$set": bson.M{"updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: decrement inventory quantity")
	}
	return res.MatchedCount > 0, nil
}

func translateMongoWriteError(err error, op string) error {
	if mongo.IsDuplicateKeyError(err) {
		switch msg := err.Error(); {
		case strings.Contains(msg, models.InventoryBarcodeConstraint):
			return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrBarcodeTaken, "barcode already assigned")
		case strings.Contains(msg, models.InventoryFingerprintConstraint):
			return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrFingerprintTaken, "an item with this name, category, size and color already exists")
		}
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, op)
}

var (
	_ Repository = (*GormRepository)(nil)
	_ Repository = (*MongoRepository)(nil)
)
