package models

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoParticipantRepo struct {
	col *mongo.Collection
}

func NewMongoParticipantRepository(col *mongo.Collection) ParticipantRepository {
	return &mongoParticipantRepo{col: col}
}

func (r *mongoParticipantRepo) Create(ctx context.Context, p *Participant) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, p)
	return err
}

func (r *mongoParticipantRepo) GetByID(ctx context.Context, id primitive.ObjectID) (Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p Participant
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Participant{}, ErrNotFound
		}
		return Participant{}, err
	}
	return p, nil
}

// joinStages attaches the event and the proposal the event came from.
func joinStages() mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$lookup", Value: bson.M{
			"from": "events", "localField": "event_id", "foreignField": "_id", "as": "event",
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$event", "preserveNullAndEmptyArrays": true}}},
		{{Key: "$lookup", Value: bson.M{
			"from": "proposals", "localField": "event.proposal_id", "foreignField": "_id", "as": "proposal",
			"pipeline": bson.A{bson.M{"$project": bson.M{"title": 1}}},
		}}},
		{{Key: "$unwind", Value: bson.M{"path": "$proposal", "preserveNullAndEmptyArrays": true}}},
	}
}

func (r *mongoParticipantRepo) GetView(ctx context.Context, id primitive.ObjectID) (ParticipantView, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	pipeline := append(mongo.Pipeline{{{Key: "$match", Value: bson.M{"_id": id}}}}, joinStages()...)
	cur, err := r.col.Aggregate(ctx, pipeline)
	if err != nil {
		return ParticipantView{}, err
	}
	var out []ParticipantView
	if err := cur.All(ctx, &out); err != nil {
		return ParticipantView{}, err
	}
	if len(out) == 0 {
		return ParticipantView{}, ErrNotFound
	}
	return out[0], nil
}

func participantMatch(f ParticipantFilter) bson.M {
	m := bson.M{"archived": f.Archived}
	if f.EventID != nil {
		m["event_id"] = *f.EventID
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	if f.Search != "" {
		rx := primitive.Regex{Pattern: regexQuote(f.Search), Options: "i"}
		m["$or"] = bson.A{
			bson.M{"first_name": rx},
			bson.M{"last_name": rx},
			bson.M{"email": rx},
		}
	}
	if dr := dateRange(f.From, f.To); dr != nil {
		m["created_at"] = dr
	}
	return m
}

func (r *mongoParticipantRepo) List(ctx context.Context, f ParticipantFilter, p Page) ([]ParticipantView, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	p = p.Normalize()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: participantMatch(f)}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
	}
	pipeline = append(pipeline, joinStages()...)
	pipeline = append(pipeline, facetStage(p))

	var out []ParticipantView
	total, err := aggregatePage(ctx, r.col, pipeline, &out)
	return out, total, err
}

func (r *mongoParticipantRepo) updateOne(ctx context.Context, filter, set bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	set["updated_at"] = time.Now().UTC()
	res, err := r.col.UpdateOne(ctx, filter, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoParticipantRepo) UpdateStatus(ctx context.Context, id primitive.ObjectID, from, to string) error {
	set := bson.M{"status": to}
	if to == StatusAccept {
		set["pass.state"] = PassQueued
		set["pass.last_error"] = ""
	}
	err := r.updateOne(ctx, bson.M{"_id": id, "status": from}, set)
	if errors.Is(err, ErrNotFound) {
		if _, getErr := r.GetByID(ctx, id); getErr != nil {
			return getErr
		}
		return ErrStaleState
	}
	return err
}

func (r *mongoParticipantRepo) UpdateAttendance(ctx context.Context, id primitive.ObjectID, value string) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"attendance_status": value})
}

func (r *mongoParticipantRepo) UpdateArchive(ctx context.Context, id primitive.ObjectID, archived bool) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"archived": archived})
}

func (r *mongoParticipantRepo) Delete(ctx context.Context, id primitive.ObjectID) error {
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

func (r *mongoParticipantRepo) CountByEvent(ctx context.Context, eventID primitive.ObjectID) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	return r.col.CountDocuments(ctx, bson.M{"event_id": eventID})
}

func (r *mongoParticipantRepo) ListAcceptedByEvent(ctx context.Context, eventID primitive.ObjectID) ([]Participant, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"event_id": eventID, "status": StatusAccept})
	if err != nil {
		return nil, err
	}
	var out []Participant
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *mongoParticipantRepo) QueuePass(ctx context.Context, id primitive.ObjectID) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx,
		bson.M{"_id": id, "pass.state": bson.M{"$nin": bson.A{PassQueued, PassIssued}}},
		bson.M{"$set": bson.M{"pass.state": PassQueued, "pass.last_error": "", "updated_at": time.Now().UTC()}})
	if err != nil {
		return false, err
	}
	if res.MatchedCount == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

func (r *mongoParticipantRepo) SetPass(ctx context.Context, id primitive.ObjectID, pass Pass) error {
	return r.updateOne(ctx, bson.M{"_id": id}, bson.M{"pass": pass})
}

func (r *mongoParticipantRepo) ListByPassState(ctx context.Context, state string) ([]primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	cur, err := r.col.Find(ctx, bson.M{"pass.state": state})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []primitive.ObjectID
	for cur.Next(ctx) {
		var p struct {
			ID primitive.ObjectID `bson:"_id"`
		}
		if err := cur.Decode(&p); err != nil {
			return nil, err
		}
		ids = append(ids, p.ID)
	}
	return ids, cur.Err()
}
