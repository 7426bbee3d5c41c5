package models

import (
	"context"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// facetStage splits a pipeline into one page of data plus the total count.
func facetStage(p Page) bson.D {
	return bson.D{{Key: "$facet", Value: bson.M{
		"data": bson.A{
			bson.M{"$skip": p.Skip()},
			bson.M{"$limit": int64(p.Limit)},
		},
		"total": bson.A{bson.M{"$count": "count"}},
	}}}
}

// aggregatePage runs a pipeline ending in facetStage and decodes the page
// into out (a pointer to a slice).
func aggregatePage(ctx context.Context, col *mongo.Collection, pipeline mongo.Pipeline, out any) (int64, error) {
	cur, err := col.Aggregate(ctx, pipeline)
	if err != nil {
		return 0, err
	}
	defer cur.Close(ctx)

	var res []struct {
		Data  bson.RawValue `bson:"data"`
		Total []struct {
			Count int64 `bson:"count"`
		} `bson:"total"`
	}
	if err := cur.All(ctx, &res); err != nil {
		return 0, err
	}
	if len(res) == 0 {
		return 0, nil
	}
	if err := res[0].Data.Unmarshal(out); err != nil {
		return 0, err
	}

	var total int64
	if len(res[0].Total) > 0 {
		total = res[0].Total[0].Count
	}
	return total, nil
}

func regexQuote(s string) string { return regexp.QuoteMeta(s) }

func dateRange(from, to *time.Time) bson.M {
	if from == nil && to == nil {
		return nil
	}
	m := bson.M{}
	if from != nil {
		m["$gte"] = *from
	}
	if to != nil {
		m["$lte"] = *to
	}
	return m
}
