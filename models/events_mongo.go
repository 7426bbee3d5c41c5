package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const opTimeout = 5 * time.Second

type mongoEventRepo struct {
	col *mongo.Collection
}

func NewMongoEventRepository(col *mongo.Collection) EventRepository {
	return &mongoEventRepo{col: col}
}

func (r *mongoEventRepo) Create(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, e)
	return err
}

func (r *mongoEventRepo) GetByID(ctx context.Context, id primitive.ObjectID) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var e Event
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&e); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Event{}, ErrNotFound
		}
		return Event{}, err
	}
	return e, nil
}

func eventMatch(f EventFilter) bson.M {
	m := bson.M{}
	if f.OrganizerID != "" {
		m["organizer_id"] = f.OrganizerID
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexQuote(f.Search), Options: "i"}
		m["$or"] = bson.A{bson.M{"name": rx}, bson.M{"venue": rx}}
	}
	if dr := dateRange(f.From, f.To); dr != nil {
		m["event_date"] = dr
	}
	return m
}

func (r *mongoEventRepo) List(ctx context.Context, f EventFilter, p Page) ([]Event, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p = p.Normalize()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: eventMatch(f)}},
		{{Key: "$sort", Value: bson.D{{Key: "event_date", Value: 1}}}},
		facetStage(p),
	}
	var out []Event
	total, err := aggregatePage(ctx, r.col, pipeline, &out)
	return out, total, err
}

func (r *mongoEventRepo) Update(ctx context.Context, e *Event) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": e.ID, "registered_count": bson.M{"$lte": e.Capacity}},
		bson.M{"$set": bson.M{
			"name":         e.Name,
			"description":  e.Description,
			"venue":        e.Venue,
			"capacity":     e.Capacity,
			"event_date":   e.EventDate,
			"resource_ids": e.ResourceIDs,
			"status":       e.Status,
			"updated_at":   e.UpdatedAt,
		}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, e.ID); err != nil {
			return err
		}
		return ErrStaleState
	}
	return nil
}

func (r *mongoEventRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
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

// ReserveSeat is the single conditional increment that keeps
// registered_count <= capacity under concurrent registrations.
func (r *mongoEventRepo) ReserveSeat(ctx context.Context, id primitive.ObjectID) (Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	filter := bson.M{
		"_id":   id,
		"$expr": bson.M{"$lt": bson.A{"$registered_count", "$capacity"}},
	}
	update := bson.M{"$inc": bson.M{"registered_count": 1}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var e Event
	err := r.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&e)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return Event{}, err
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return Event{}, err
	}
	return Event{}, ErrEventFull
}

func (r *mongoEventRepo) ReleaseSeat(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "registered_count": bson.M{"$gt": 0}},
		bson.M{"$inc": bson.M{"registered_count": -1}})
	return err
}

func (r *mongoEventRepo) SetImage(ctx context.Context, id primitive.ObjectID, img Image) (*Image, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var before Event
	err := r.col.FindOneAndUpdate(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"image": img, "updated_at": time.Now().UTC()}},
	).Decode(&before)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return before.Image, nil
}

func (r *mongoEventRepo) ListPastUnnotified(ctx context.Context, now time.Time) ([]Event, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{
		"event_date":      bson.M{"$lt": now},
		"review_notified": bson.M{"$ne": true},
		"status":          bson.M{"$ne": EventCancelled},
	})
	if err != nil {
		return nil, err
	}
	var out []Event
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoEventRepo) MarkReviewNotified(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"review_notified": true, "updated_at": time.Now().UTC()}})
	return err
}
