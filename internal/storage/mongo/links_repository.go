package mongo

import (
	"context"
	"errors"
	"time"

	"github.com/atalho/atalho-url/internal/infrastructure/db"
	"github.com/atalho/atalho-url/internal/processing/shortener"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type LinksRepository struct {
	coll *mongo.Collection
}

type linkDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	Code          string             `bson:"code"`
	TargetURL     string             `bson:"targetUrl"`
	CreatedAt     time.Time          `bson:"createdAt"`
	ExpiresAt     *time.Time         `bson:"expiresAt,omitempty"`
	ClickCount    int64              `bson:"clickCount,omitempty"`
	LastClickedAt *time.Time         `bson:"lastClickedAt,omitempty"`
}

func NewLinksRepository(m *db.Mongo) (*LinksRepository, error) {
	repo := &LinksRepository{coll: m.Collection("links")}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := repo.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "code", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_code"),
		},
		{
			Keys:    bson.D{{Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("createdAt_desc"),
		},
		{
			Keys:    bson.D{{Key: "expiresAt", Value: 1}},
			Options: options.Index().SetName("expiresAt_asc"),
		},
	})
	if err != nil {
		return nil, err
	}

	return repo, nil
}

func (r *LinksRepository) Insert(ctx context.Context, link *shortener.Link) error {
	doc := linkDoc{
		Code:      link.Code,
		TargetURL: link.TargetURL,
		CreatedAt: link.CreatedAt.UTC(),
		ExpiresAt: link.ExpiresAt,
	}

	_, err := r.coll.InsertOne(ctx, doc)
	if err == nil {
		return nil
	}

	if mongo.IsDuplicateKeyError(err) {
		return shortener.ErrCodeTaken
	}

	return err
}

func (r *LinksRepository) GetByCode(ctx context.Context, code string) (*shortener.Link, error) {
	var doc linkDoc
	err := r.coll.FindOne(ctx, bson.M{"code": code}).Decode(&doc)
	if err == nil {
		return mapLinkDoc(doc), nil
	}

	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, shortener.ErrNotFound
	}

	return nil, err
}

func (r *LinksRepository) IncrementClick(ctx context.Context, code string, at time.Time) error {
	// $max keeps lastClickedAt monotonic even when clicks arrive out of order.
	update := bson.M{
		"$inc": bson.M{"clickCount": 1},
		"$max": bson.M{"lastClickedAt": at.UTC()},
	}

	res, err := r.coll.UpdateOne(ctx, bson.M{"code": code}, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return shortener.ErrNotFound
	}
	return nil
}

func (r *LinksRepository) Delete(ctx context.Context, code string) (bool, error) {
	res, err := r.coll.DeleteOne(ctx, bson.M{"code": code})
	if err != nil {
		return false, err
	}
	return res.DeletedCount > 0, nil
}

func (r *LinksRepository) DeleteExpired(ctx context.Context, asOf time.Time) ([]string, error) {
	expired := bson.M{"$ne": nil, "$lte": asOf.UTC()}

	cursor, err := r.coll.Find(ctx, bson.M{"expiresAt": expired},
		options.Find().SetProjection(bson.M{"code": 1}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var candidates []string
	for cursor.Next(ctx) {
		var doc struct {
			Code string `bson:"code"`
		}
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		candidates = append(candidates, doc.Code)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}

	// Each delete repeats the expiry predicate so a code deleted and
	// re-created between the scan and the delete is left alone. Only codes
	// whose expired document was actually removed are reported.
	var removed []string
	for _, code := range candidates {
		res, err := r.coll.DeleteOne(ctx, bson.M{"code": code, "expiresAt": expired})
		if err != nil {
			return removed, err
		}
		if res.DeletedCount > 0 {
			removed = append(removed, code)
		}
	}
	return removed, nil
}

func (r *LinksRepository) ListPage(ctx context.Context, limit, offset int64) ([]shortener.Link, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(limit).
		SetSkip(offset)

	cursor, err := r.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	links := make([]shortener.Link, 0, limit)
	for cursor.Next(ctx) {
		var doc linkDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		links = append(links, *mapLinkDoc(doc))
	}
	return links, cursor.Err()
}

func (r *LinksRepository) Count(ctx context.Context) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{})
}

func (r *LinksRepository) Stats(ctx context.Context) (shortener.Stats, error) {
	now := time.Now().UTC()

	activeCond := bson.M{"$or": bson.A{
		bson.M{"$eq": bson.A{bson.M{"$ifNull": bson.A{"$expiresAt", nil}}, nil}},
		bson.M{"$gt": bson.A{"$expiresAt", now}},
	}}

	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.M{
			"_id":         nil,
			"totalLinks":  bson.M{"$sum": 1},
			"totalClicks": bson.M{"$sum": bson.M{"$ifNull": bson.A{"$clickCount", 0}}},
			"activeLinks": bson.M{"$sum": bson.M{"$cond": bson.A{activeCond, 1, 0}}},
		}}},
	}

	cursor, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return shortener.Stats{}, err
	}
	defer cursor.Close(ctx)

	var row struct {
		TotalLinks  int64 `bson:"totalLinks"`
		TotalClicks int64 `bson:"totalClicks"`
		ActiveLinks int64 `bson:"activeLinks"`
	}
	if cursor.Next(ctx) {
		if err := cursor.Decode(&row); err != nil {
			return shortener.Stats{}, err
		}
	}
	if err := cursor.Err(); err != nil {
		return shortener.Stats{}, err
	}

	return shortener.Stats{
		TotalLinks:   row.TotalLinks,
		ActiveLinks:  row.ActiveLinks,
		ExpiredLinks: row.TotalLinks - row.ActiveLinks,
		TotalClicks:  row.TotalClicks,
	}, nil
}

// Ping reports whether the database is reachable.
func (r *LinksRepository) Ping(ctx context.Context) error {
	return r.coll.Database().Client().Ping(ctx, nil)
}

func mapLinkDoc(doc linkDoc) *shortener.Link {
	return &shortener.Link{
		Code:          doc.Code,
		TargetURL:     doc.TargetURL,
		CreatedAt:     doc.CreatedAt,
		ExpiresAt:     doc.ExpiresAt,
		ClickCount:    doc.ClickCount,
		LastClickedAt: doc.LastClickedAt,
	}
}
