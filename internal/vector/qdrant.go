package vector

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// QdrantBatchSize is the number of points sent per upsert.
const QdrantBatchSize = 256

// ExportRecord is one normalized vector with the chunk fields carried as payload.
type ExportRecord struct {
	ChunkID string
	Rel     string
	Section *string
	Source  *string
	Vector  []float32
}

// QdrantSink mirrors a built index into a Qdrant collection.
type QdrantSink struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	logger      *zap.Logger
}

// NewQdrantSink connects to Qdrant's gRPC port. Extra dial options are appended
// after the insecure transport credentials.
func NewQdrantSink(host string, port int, collection string, logger *zap.Logger, opts ...grpc.DialOption) (*QdrantSink, error) {
	if collection == "" {
		return nil, fmt.Errorf("qdrant collection name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	addr := fmt.Sprintf("%s:%d", host, port)
	dialOpts := append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	return &QdrantSink{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
		logger:      logger,
	}, nil
}

// PointID derives a stable Qdrant point id from a chunk id.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}

// Export recreates the collection with dot-product distance and upserts every
// record. Record i is stored with payload position i.
func (s *QdrantSink) Export(ctx context.Context, dims int, records []ExportRecord) error {
	if err := s.recreate(ctx, dims); err != nil {
		return err
	}

	wait := true
	for start := 0; start < len(records); start += QdrantBatchSize {
		end := min(start+QdrantBatchSize, len(records))
		points := make([]*pb.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, toPoint(i, records[i]))
		}
		if _, err := s.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: s.collection,
			Wait:           &wait,
			Points:         points,
		}); err != nil {
			return fmt.Errorf("qdrant upsert at %d: %w", start, err)
		}
		s.logger.Debug("qdrant upsert", zap.Int("offset", start), zap.Int("points", len(points)))
	}

	s.logger.Info("exported vectors to qdrant",
		zap.String("collection", s.collection),
		zap.Int("points", len(records)))
	return nil
}

func (s *QdrantSink) recreate(ctx context.Context, dims int) error {
	_, err := s.collections.Delete(ctx, &pb.DeleteCollection{CollectionName: s.collection})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("qdrant delete collection %s: %w", s.collection, err)
	}
	_, err = s.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: s.collection,
		VectorsConfig: &pb.VectorsConfig{Config: &pb.VectorsConfig_Params{
			Params: &pb.VectorParams{Size: uint64(dims), Distance: pb.Distance_Dot},
		}},
	})
	if err != nil {
		return fmt.Errorf("qdrant create collection %s: %w", s.collection, err)
	}
	return nil
}

func toPoint(position int, r ExportRecord) *pb.PointStruct {
	return &pb.PointStruct{
		Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: PointID(r.ChunkID)}},
		Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Vector}}},
		Payload: map[string]*pb.Value{
			"chunk_id": stringValue(r.ChunkID),
			"rel":      stringValue(r.Rel),
			"section":  optionalString(r.Section),
			"source":   optionalString(r.Source),
			"position": {Kind: &pb.Value_IntegerValue{IntegerValue: int64(position)}},
		},
	}
}

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func optionalString(s *string) *pb.Value {
	if s == nil {
		return &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	}
	return stringValue(*s)
}

// Close closes the gRPC connection.
func (s *QdrantSink) Close() error {
	return s.conn.Close()
}
