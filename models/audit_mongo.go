package models

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Audit entries are append-only: this repository has no update or delete.
type mongoAuditRepo struct {
	col *mongo.Collection
}

func NewMongoAuditRepository(col *mongo.Collection) AuditRepository {
	return &mongoAuditRepo{col: col}
}

// Insert is idempotent on a.ID so a retried write never duplicates an entry.
func (r *mongoAuditRepo) Insert(ctx context.Context, a *AuditLog) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	_, err := r.col.InsertOne(ctx, a)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	return err
}

func (r *mongoAuditRepo) List(ctx context.Context, f AuditFilter, p Page) ([]AuditLog, int64, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	m := bson.M{}
	if f.Module != "" {
		m["module"] = f.Module
	}
	if f.ReferenceID != "" {
		m["reference_id"] = f.ReferenceID
	}
	if f.ActionType != "" {
		m["action_type"] = f.ActionType
	}
	p = p.Normalize()
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: m}},
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}}}},
		facetStage(p),
	}
	var out []AuditLog
	total, err := aggregatePage(ctx, r.col, pipeline, &out)
	return out, total, err
}
