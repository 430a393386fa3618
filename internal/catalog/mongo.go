package catalog

import (
	"context"
	"errors"

	"boxoffice/pkg/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const showsCollection = "shows"

// MongoRepository reads show definitions from MongoDB. Shows are stored as
// one document per show with embedded units.
type MongoRepository struct {
	collection *mongo.Collection
}

func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	return &MongoRepository{
		collection: client.Database(database).Collection(showsCollection),
	}
}

func (r *MongoRepository) UnitsOf(ctx context.Context, groupID string) ([]model.InventoryUnit, error) {
	var show model.Show
	err := r.collection.FindOne(ctx, bson.M{"_id": groupID}).Decode(&show)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}
	return show.Units, nil
}

func (r *MongoRepository) UnitPrice(ctx context.Context, groupID, unitID string) (int64, error) {
	units, err := r.UnitsOf(ctx, groupID)
	if err != nil {
		return 0, err
	}
	for _, u := range units {
		if u.UnitID == unitID {
			return u.Price, nil
		}
	}
	return 0, ErrUnitNotFound
}
