package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

const collectionUsers = "users"

type UserRepository struct {
	col *mongo.Collection
}

func NewUserRepository(db *mongo.Database) *UserRepository {
	return &UserRepository{col: db.Collection(collectionUsers)}
}

// userDoc keeps the camelCase field names clients already read.
type userDoc struct {
	ID         string `bson:"_id"`
	Email      string `bson:"email"`
	Name       string `bson:"name"`
	UserType   string `bson:"userType,omitempty"`
	RollNumber string `bson:"rollNumber,omitempty"`
	BatchYear  string `bson:"batchYear,omitempty"`
	FullBatch  string `bson:"fullBatch,omitempty"`
	CreatedAt  int64  `bson:"createdAt,omitempty"`
	LastLogin  int64  `bson:"lastLogin,omitempty"`
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc userDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageError("find user", err)
	}
	return doc.toDomain(), nil
}

// Save replaces the whole profile document.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := userDoc{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		UserType:  string(user.Role),
		CreatedAt: timeToMs(user.CreatedAt),
		LastLogin: timeToMs(user.LastLogin),
	}
	if user.Student != nil {
		doc.RollNumber = user.Student.RollNumber
		doc.BatchYear = user.Student.BatchYear
		doc.FullBatch = user.Student.FullBatch
	}

	_, err := r.col.ReplaceOne(ctx, bson.M{"_id": user.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return storageError("save user", err)
	}
	return nil
}

// SetRole writes only the userType field, creating the document if needed.
func (r *UserRepository) SetRole(ctx context.Context, id string, role domain.Role) error {
	return r.setField(ctx, id, "userType", string(role))
}

func (r *UserRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	return r.setField(ctx, id, "lastLogin", timeToMs(at))
}

func (r *UserRepository) setField(ctx context.Context, id, field string, value any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{field: value}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return storageError("update user "+field, err)
	}
	return nil
}

func (d userDoc) toDomain() *domain.User {
	u := &domain.User{
		ID:        d.ID,
		Email:     d.Email,
		Name:      d.Name,
		Role:      domain.Role(d.UserType),
		CreatedAt: msToTime(d.CreatedAt),
		LastLogin: msToTime(d.LastLogin),
	}
	if d.RollNumber != "" {
		u.Student = &domain.StudentInfo{
			RollNumber: d.RollNumber,
			BatchYear:  d.BatchYear,
			FullBatch:  d.FullBatch,
		}
	}
	return u
}
