package mongo

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/campusbus/bus-tracker/internal/core/domain"
)

const collectionDrivers = "drivers"

type DriverRepository struct {
	col *mongo.Collection
}

func NewDriverRepository(db *mongo.Database) *DriverRepository {
	return &DriverRepository{col: db.Collection(collectionDrivers)}
}

type driverDoc struct {
	ID     string `bson:"_id"`
	Name   string `bson:"name"`
	Number string `bson:"number"`
}

// Upsert creates or fully replaces drivers/{id}.
func (r *DriverRepository) Upsert(ctx context.Context, d domain.Driver) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	doc := driverDoc{ID: d.ID, Name: d.Name, Number: d.Number}
	if _, err := r.col.ReplaceOne(ctx, bson.M{"_id": d.ID}, doc, options.Replace().SetUpsert(true)); err != nil {
		return storageError("upsert driver", err)
	}
	return nil
}

func (r *DriverRepository) FindByID(ctx context.Context, id string) (*domain.Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc driverDoc
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrDriverNotFound
		}
		return nil, storageError("find driver", err)
	}
	d := doc.toDomain()
	return &d, nil
}

// List returns every driver ordered by name.
func (r *DriverRepository) List(ctx context.Context) ([]domain.Driver, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	cursor, err := r.col.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, storageError("list drivers", err)
	}
	defer cursor.Close(ctx)

	var docs []driverDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, storageError("decode drivers", err)
	}

	drivers := make([]domain.Driver, 0, len(docs))
	for _, doc := range docs {
		drivers = append(drivers, doc.toDomain())
	}
	return drivers, nil
}

func (r *DriverRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, indexTimeout)
	defer cancel()

	_, err := r.col.Indexes().CreateOne(ctx, mongo.IndexModel{Keys: bson.D{{Key: "name", Value: 1}}})
	return err
}

func (d driverDoc) toDomain() domain.Driver {
	return domain.Driver{ID: d.ID, Name: d.Name, Number: d.Number}
}
