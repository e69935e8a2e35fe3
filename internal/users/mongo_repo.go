package users

import (
	"context"
	"errors"
	"time"

	"github.com/angelmondragon/stockroom-backend/pkg/db/models"
	"github.com/angelmondragon/stockroom-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/stockroom-backend/pkg/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDocument struct {
	ID           string     `bson:"_id"`
	Email        string     `bson:"email"`
	PasswordHash string     `bson:"password_hash"`
	Name         string     `bson:"name"`
	Role         string     `bson:"role"`
	IsActive     bool       `bson:"is_active"`
	LastLoginAt  *time.Time `bson:"last_login_at,omitempty"`
	CreatedAt    time.Time  `bson:"created_at"`
	UpdatedAt    time.Time  `bson:"updated_at"`
}

// MongoRepository stores staff accounts in the users collection.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(db *mongo.Database) *MongoRepository {
	return &MongoRepository{collection: db.Collection("users")}
}

func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName(models.UserEmailConstraint),
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: ensure user indexes")
	}
	return nil
}

func (r *MongoRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now().UTC()
	user.CreatedAt, user.UpdatedAt = now, now
	doc := userDocument{
		ID:           user.ID.String(),
		Email:        user.Email,
		PasswordHash: user.PasswordHash,
		Name:         user.Name,
		Role:         user.Role.String(),
		IsActive:     user.IsActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if _, err := r.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, ErrEmailTaken, "email already registered")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: create user")
	}
	return nil
}

func (r *MongoRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.findOne(ctx, bson.M{"email": email})
}

func (r *MongoRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.findOne(ctx, bson.M{"_id": id.String()})
}

func (r *MongoRepository) findOne(ctx context.Context, filter bson.M) (*models.User, error) {
	var doc userDocument
	if err := r.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: find user")
	}
	id, err := uuid.Parse(doc.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mongo: decode user")
	}
	return &models.User{
		ID:           id,
		Email:        doc.Email,
		PasswordHash: doc.PasswordHash,
		Name:         doc.Name,
		Role:         enums.UserRole(doc.Role),
		IsActive:     doc.IsActive,
		LastLoginAt:  doc.LastLoginAt,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}, nil
}

func (r *MongoRepository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.collection.UpdateOne(ctx, bson.M{"_id": id.String()}, bson.M{"$set": bson.M{"last_login_at": at}})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: update last login")
	}
	return nil
}

func (r *MongoRepository) CountAdmins(ctx context.Context) (int64, error) {
	n, err := r.collection.CountDocuments(ctx, bson.M{"role": enums.UserRoleAdmin.String()})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mongo: count admins")
	}
	return n, nil
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MongoRepository)(nil)
)
