package models

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

type mongoProposalRepo struct {
	col *mongo.Collection
}

func NewMongoProposalRepository(col *mongo.Collection) ProposalRepository {
	return &mongoProposalRepo{col: col}
}

func (r *mongoProposalRepo) Create(ctx context.Context, p *Proposal) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, p)
	return err
}

func (r *mongoProposalRepo) GetByID(ctx context.Context, id primitive.ObjectID) (Proposal, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	var p Proposal
	if err := r.col.FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Proposal{}, ErrNotFound
		}
		return Proposal{}, err
	}
	return p, nil
}

func (r *mongoProposalRepo) List(ctx context.Context, f ProposalFilter, p Page) ([]Proposal, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	m := bson.M{}
	if f.OrganizerID != "" {
		m["organizer_id"] = f.OrganizerID
	}
	if f.Status != "" {
		m["status"] = f.Status
	}
	p = p.Normalize()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: m}},
		{{Key: "$sort", Value: bson.D{{Key: "created_at", Value: -1}}}},
		facetStage(p),
	}
	var out []Proposal
	total, err := aggregatePage(ctx, r.col, pipeline, &out)
	return out, total, err
}

// conditional runs an update that must match; when it does not, the
// document is looked up to tell ErrNotFound from the given conflict.
func (r *mongoProposalRepo) conditional(ctx context.Context, id primitive.ObjectID, filter, update bson.M, conflict error) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	res, err := r.col.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if res.MatchedCount > 0 {
		return nil
	}
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return conflict
}

func (r *mongoProposalRepo) Decide(ctx context.Context, id primitive.ObjectID, status string) error {
	return r.conditional(ctx, id,
		bson.M{"_id": id, "status": ProposalPending},
		bson.M{"$set": bson.M{"status": status}},
		ErrStaleState)
}

func (r *mongoProposalRepo) ClaimForEvent(ctx context.Context, id, eventID primitive.ObjectID) error {
	return r.conditional(ctx, id,
		bson.M{"_id": id, "status": ProposalApproved, "event_id": nil},
		bson.M{"$set": bson.M{"event_id": eventID}},
		ErrAlreadyAssigned)
}

func (r *mongoProposalRepo) ReleaseClaim(ctx context.Context, id primitive.ObjectID) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	_, err := r.col.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"event_id": nil}})
	return err
}
