package models

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Relies on the unique index on participant_id created in db.EnsureIndexes.
type mongoFeedbackRepo struct {
	col *mongo.Collection
}

func NewMongoFeedbackRepository(col *mongo.Collection) FeedbackRepository {
	return &mongoFeedbackRepo{col: col}
}

func (r *mongoFeedbackRepo) Create(ctx context.Context, f *Feedback) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if f.ID.IsZero() {
		f.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, f)
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return err
}

func (r *mongoFeedbackRepo) ExistsForParticipant(ctx context.Context, participantID primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	n, err := r.col.CountDocuments(ctx, bson.M{"participant_id": participantID})
	return n > 0, err
}

func (r *mongoFeedbackRepo) ListByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Feedback, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"event_id": eventID})
	if err != nil {
		return nil, err
	}
	var out []Feedback
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}
