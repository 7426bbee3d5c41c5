package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoNotificationRepo struct {
	col *mongo.Collection
}

func NewMongoNotificationRepository(col *mongo.Collection) NotificationRepository {
	return &mongoNotificationRepo{col: col}
}

func (r *mongoNotificationRepo) Create(ctx context.Context, n *Notification) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, n)
	return err
}

func (r *mongoNotificationRepo) GetByID(ctx context.Context, id primitive.ObjectID) (Notification, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var n Notification
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&n); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Notification{}, ErrNotFound
		}
		return Notification{}, err
	}
	return n, nil
}

func (r *mongoNotificationRepo) ListForViewer(ctx context.Context, viewer string, p Page) ([]Notification, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p = p.Normalize()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"viewers.user": viewer}}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		facetStage(p),
	}
	var out []Notification
	total, err := aggregatePage(ctx, r.col, pipeline, &out)
	return out, total, err
}

func (r *mongoNotificationRepo) UnreadCount(ctx context.Context, viewer string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	return r.col.CountDocuments(ctx, bson.M{
		"viewers": bson.M{"$elemMatch": bson.M{"user": viewer, "is_read": false}},
	})
}

// MarkRead uses the positional operator so only the matched viewer entry
// is touched.
func (r *mongoNotificationRepo) MarkRead(ctx context.Context, id primitive.ObjectID, viewer string, at time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "viewers.user": viewer},
		bson.M{"$set": bson.M{"viewers.$.is_read": true, "viewers.$.read_at": at}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoNotificationRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
