package store

import (
	"context"
	"net/url"
	"time"

	"gitlab.com/tozd/go/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const defaultScanBatchSize = 100

// Client wraps one MongoDB deployment (or a Cosmos DB account reached
// through its Mongo API) and hands out container references.
type Client struct {
	mc   *mongo.Client
	host string
}

// Connect establishes and verifies a connection to the given URI.
func Connect(ctx context.Context, uri string) (*Client, error) {
	clientOptions := options.Client().ApplyURI(uri)
	clientOptions.SetConnectTimeout(10 * time.Second)
	clientOptions.SetMaxPoolSize(100)
	clientOptions.SetMinPoolSize(10)
	clientOptions.SetMaxConnIdleTime(30 * time.Second)
	clientOptions.SetRetryWrites(true)
	clientOptions.SetRetryReads(true)
	clientOptions.SetCompressors([]string{"snappy"})

	mc, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, errors.Errorf("connecting to store: %w", err)
	}
	if err := mc.Ping(ctx, nil); err != nil {
		_ = mc.Disconnect(ctx)
		return nil, errors.Errorf("pinging store: %w", err)
	}
	return &Client{mc: mc, host: hostOf(uri)}, nil
}

// Close releases the underlying connection pool.
func (c *Client) Close(ctx context.Context) error {
	return c.mc.Disconnect(ctx)
}

// Container returns a reference to one collection. The collection does not
// have to exist yet; a missing source surfaces as a zero count.
func (c *Client) Container(database, collection string) Container {
	return &mongoContainer{
		coll: c.mc.Database(database).Collection(collection),
		key:  c.host + "/" + database + "/" + collection,
	}
}

// hostOf extracts the host part of a connection URI so container keys never
// carry credentials. Falls back to the raw URI when it does not parse; keys
// are compared, never logged.
func hostOf(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Host == "" {
		return uri
	}
	return u.Host
}

type mongoContainer struct {
	coll *mongo.Collection
	key  string
}

func (m *mongoContainer) Name() string { return m.coll.Name() }
func (m *mongoContainer) Key() string  { return m.key }

func (m *mongoContainer) Count(ctx context.Context) (int64, error) {
	n, err := m.coll.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

func (m *mongoContainer) Scan(ctx context.Context) (Cursor, error) {
	findOptions := options.Find().
		SetNoCursorTimeout(true).
		SetBatchSize(defaultScanBatchSize)

	cur, err := m.coll.Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, classify("scan", err)
	}
	return &mongoCursor{cur: cur}, nil
}

func (m *mongoContainer) Upsert(ctx context.Context, rec Record) error {
	filter, err := idFilter(rec)
	if err != nil {
		return NewPermanent("upsert", err)
	}
	_, err = m.coll.ReplaceOne(ctx, filter, bson.M(rec), options.Replace().SetUpsert(true))
	return classify("upsert", err)
}

func idFilter(rec Record) (bson.M, error) {
	if v, ok := rec["_id"]; ok {
		return bson.M{"_id": v}, nil
	}
	if v, ok := rec["id"]; ok {
		return bson.M{"id": v}, nil
	}
	return nil, errors.New("record has no _id or id field")
}

type mongoCursor struct {
	cur *mongo.Cursor
	rec Record
	err error
}

func (c *mongoCursor) Next(ctx context.Context) bool {
	if c.err != nil {
		return false
	}
	if !c.cur.Next(ctx) {
		c.err = classify("scan", c.cur.Err())
		return false
	}
	var doc bson.M
	if err := c.cur.Decode(&doc); err != nil {
		c.err = NewPermanent("decode", err)
		return false
	}
	c.rec = Record(doc)
	return true
}

func (c *mongoCursor) Record() Record { return c.rec }

func (c *mongoCursor) Err() error {
	return c.err
}

func (c *mongoCursor) Close(ctx context.Context) error {
	return c.cur.Close(ctx)
}

// Server states that clear on their own. 16500 is how the Cosmos DB Mongo
// API reports request-rate throttling; the rest are MongoDB elections,
// shutdowns and time limits.
var transientCodes = []int{
	6,     // HostUnreachable
	7,     // HostNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	262,   // ExceededTimeLimit
	9001,  // SocketException
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13436, // NotPrimaryOrSecondary
	16500, // TooManyRequests (Cosmos DB)
}

// classify maps a driver error onto the store error taxonomy. A nil err
// stays nil.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if mongo.IsTimeout(err) || mongo.IsNetworkError(err) {
		return NewTransient(op, err)
	}
	var se mongo.ServerError
	if errors.As(err, &se) {
		if se.HasErrorLabel("RetryableWriteError") || se.HasErrorLabel("TransientTransactionError") {
			return NewTransient(op, err)
		}
		for _, code := range transientCodes {
			if se.HasErrorCode(code) {
				return NewTransient(op, err)
			}
		}
	}
	return NewPermanent(op, err)
}
