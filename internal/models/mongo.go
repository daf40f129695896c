package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"furitingoasis/smart_irrigation/internal/irrigation"
)

const (
	sensorCollection  = "sensor_records"
	profileCollection = "plant_profiles"
)

func NewMongoConnection(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}
	return client, nil
}

// MongoSensorRecordModel stores sensor records in a time series collection.
type MongoSensorRecordModel struct {
	collection *mongo.Collection
}

func NewMongoSensorRecordModel(ctx context.Context, db *mongo.Database) (*MongoSensorRecordModel, error) {
	tsOptions := options.CreateCollection().SetTimeSeriesOptions(
		options.TimeSeries().
			SetTimeField("timestamp").
			SetGranularity("seconds"),
	)
	err := db.CreateCollection(ctx, sensorCollection, tsOptions)
	var cmdErr mongo.CommandError
	// NamespaceExists
	if err != nil && !(errors.As(err, &cmdErr) && cmdErr.Code == 48) {
		return nil, fmt.Errorf("create %s: %w", sensorCollection, err)
	}
	return &MongoSensorRecordModel{collection: db.Collection(sensorCollection)}, nil
}

func (m *MongoSensorRecordModel) Insert(ctx context.Context, rec irrigation.SensorRecord) error {
	rec.Timestamp = rec.Timestamp.UTC()
	_, err := m.collection.InsertOne(ctx, rec)
	return err
}

func (m *MongoSensorRecordModel) Latest(ctx context.Context, n int) ([]irrigation.SensorRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(int64(n))
	recs, err := m.find(ctx, opts, 1)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(recs)-1; i < j; i, j = i+1, j-1 {
		recs[i], recs[j] = recs[j], recs[i]
	}
	return recs, nil
}

func (m *MongoSensorRecordModel) Count(ctx context.Context) (int, error) {
	n, err := m.collection.CountDocuments(ctx, bson.D{})
	return int(n), err
}

func (m *MongoSensorRecordModel) Sampled(ctx context.Context, maxPoints int) ([]irrigation.SensorRecord, error) {
	total, err := m.Count(ctx)
	if err != nil {
		return nil, err
	}
	step := 1
	if maxPoints > 0 && total > maxPoints {
		step = int(math.Ceil(float64(total) / float64(maxPoints)))
	}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return m.find(ctx, opts, step)
}

func (m *MongoSensorRecordModel) find(ctx context.Context, opts *options.FindOptionsBuilder, step int) ([]irrigation.SensorRecord, error) {
	cursor, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	recs := []irrigation.SensorRecord{}
	count := 0
	for cursor.Next(ctx) {
		if count%step == 0 {
			var rec irrigation.SensorRecord
			if err := cursor.Decode(&rec); err != nil {
				return nil, err
			}
			rec.Timestamp = rec.Timestamp.UTC()
			recs = append(recs, rec)
		}
		count++
	}
	return recs, cursor.Err()
}

type profileDocument struct {
	irrigation.PlantProfile `bson:",inline"`
	Created                 time.Time `bson:"created"`
}

type MongoPlantProfileModel struct {
	collection *mongo.Collection
}

func NewMongoPlantProfileModel(ctx context.Context, db *mongo.Database) (*MongoPlantProfileModel, error) {
	collection := db.Collection(profileCollection)
	_, err := collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "plantType", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index %s: %w", profileCollection, err)
	}
	return &MongoPlantProfileModel{collection: collection}, nil
}

func (m *MongoPlantProfileModel) Get(ctx context.Context, plantType string) (irrigation.PlantProfile, error) {
	var doc profileDocument
	err := m.collection.FindOne(ctx, bson.D{{Key: "plantType", Value: plantType}}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return irrigation.PlantProfile{}, ErrNoRecord
		}
		return irrigation.PlantProfile{}, err
	}
	return doc.PlantProfile, nil
}

func (m *MongoPlantProfileModel) List(ctx context.Context) ([]irrigation.PlantProfile, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := m.collection.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []profileDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	profiles := make([]irrigation.PlantProfile, 0, len(docs))
	for _, d := range docs {
		profiles = append(profiles, d.PlantProfile)
	}
	return profiles, nil
}

func (m *MongoPlantProfileModel) Upsert(ctx context.Context, p irrigation.PlantProfile) error {
	if err := ValidateProfile(p); err != nil {
		return err
	}
	update := bson.D{
		{Key: "$set", Value: bson.D{{Key: "safeThresholds", Value: p.SafeThresholds}}},
		{Key: "$setOnInsert", Value: bson.D{{Key: "created", Value: time.Now().UTC()}}},
	}
	_, err := m.collection.UpdateOne(ctx,
		bson.D{{Key: "plantType", Value: p.PlantType}},
		update,
		options.UpdateOne().SetUpsert(true))
	return err
}
