// Package semantic is the sole owner of all Qdrant operations: it is the
// concrete implementation of the vector store contract (locations-aware
// passage records, FAIL/OVERWRITE write policies, filtered top-k search).
package semantic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/hutschen/doc-audit-api/engine/domain"
	"github.com/hutschen/doc-audit-api/pkg/resilience"
)

// EmbeddingDims is the fixed dimensionality of every stored embedding (§3).
const EmbeddingDims = 1024

// idNamespace derives a deterministic Qdrant point UUID from a passage's
// content-addressed id. Qdrant points must be UUIDs or unsigned integers;
// the passage id itself is a 64-hex SHA-256 digest, so it is kept as an
// indexed payload field and mapped to a point id via uuid.NewSHA1.
var idNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

func pointID(passageID string) string {
	return uuid.NewSHA1(idNamespace, []byte(passageID)).String()
}

// VectorStore is the sole owner of all Qdrant operations for this service.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      pb.PointsClient
	collections pb.CollectionsClient
	collection  string
	breaker     *resilience.Breaker
}

// Option configures a VectorStore.
type Option func(*VectorStore)

// WithBreaker trips outbound Qdrant calls through a circuit breaker so
// sustained store failure fails fast instead of piling up gRPC timeouts,
// mirroring the same breaker wired around the embedding collaborator in
// engine/embed.
func WithBreaker(opts resilience.BreakerOpts) Option {
	return func(v *VectorStore) { v.breaker = resilience.NewBreaker(opts) }
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string, opts ...Option) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	v := &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		collection:  collection,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// withBreaker runs f through the breaker when one is configured, otherwise
// calls it directly.
func (v *VectorStore) withBreaker(ctx context.Context, f func(context.Context) error) error {
	if v.breaker == nil {
		return f(ctx)
	}
	return v.breaker.Call(ctx, f)
}

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	return v.conn.Close()
}

// EnsureCollection creates the collection (cosine distance, EmbeddingDims)
// if it doesn't already exist, and makes sure id and locations[].id are
// indexed as keyword fields, per the store contract (§6).
func (v *VectorStore) EnsureCollection(ctx context.Context) error {
	var list *pb.ListCollectionsResponse
	err := v.withBreaker(ctx, func(ctx context.Context) error {
		var err error
		list, err = v.collections.List(ctx, &pb.ListCollectionsRequest{})
		return err
	})
	if err != nil {
		return domain.NewStoreError("list collections", err)
	}
	for _, c := range list.GetCollections() {
		if c.GetName() == v.collection {
			return nil
		}
	}

	size := uint64(EmbeddingDims)
	err = v.withBreaker(ctx, func(ctx context.Context) error {
		_, err := v.collections.Create(ctx, &pb.CreateCollection{
			CollectionName: v.collection,
			VectorsConfig: &pb.VectorsConfig{
				Config: &pb.VectorsConfig_Params{
					Params: &pb.VectorParams{
						Size:     size,
						Distance: pb.Distance_Cosine,
					},
				},
			},
		})
		return err
	})
	if err != nil {
		return domain.NewStoreError("create collection "+v.collection, err)
	}

	for _, field := range []string{"id", "locations[].id"} {
		fieldType := pb.FieldType_FieldTypeKeyword
		err = v.withBreaker(ctx, func(ctx context.Context) error {
			_, err := v.points.CreateFieldIndex(ctx, &pb.CreateFieldIndexCollection{
				CollectionName: v.collection,
				FieldName:      field,
				FieldType:      &fieldType,
			})
			return err
		})
		if err != nil {
			return domain.NewStoreError("index field "+field, err)
		}
	}
	return nil
}

// Upsert writes records under the given policy. FAIL refuses the write if
// any id already exists (§4.7); OVERWRITE unconditionally replaces.
func (v *VectorStore) Upsert(ctx context.Context, records []Record, policy WritePolicy) error {
	if len(records) == 0 {
		return nil
	}

	if policy == Fail {
		ids := make([]string, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		existing, err := v.FindByIDs(ctx, ids)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return domain.NewDuplicateWriteError(existing[0].ID)
		}
	}

	points := make([]*pb.PointStruct, len(records))
	for i, r := range records {
		points[i] = &pb.PointStruct{
			Id: &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(r.ID)}},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: r.Embedding}},
			},
			Payload: encodePayload(r),
		}
	}

	wait := true
	err := v.withBreaker(ctx, func(ctx context.Context) error {
		_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points:         points,
		})
		return err
	})
	if err != nil {
		return domain.NewStoreError(fmt.Sprintf("upsert %d points", len(records)), err)
	}
	return nil
}

// Delete removes passages by their content-addressed ids.
func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	pointIDs := make([]*pb.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: pointID(id)}}
	}
	wait := true
	err := v.withBreaker(ctx, func(ctx context.Context) error {
		_, err := v.points.Delete(ctx, &pb.DeletePoints{
			CollectionName: v.collection,
			Wait:           &wait,
			Points: &pb.PointsSelector{
				PointsSelectorOneOf: &pb.PointsSelector_Points{
					Points: &pb.PointsIdsList{Ids: pointIDs},
				},
			},
		})
		return err
	})
	if err != nil {
		return domain.NewStoreError(fmt.Sprintf("delete %d points", len(ids)), err)
	}
	return nil
}

// FindByIDs retrieves the stored records (if any) for the given
// content-addressed ids — the duplicate checker's primitive (§4.5).
func (v *VectorStore) FindByIDs(ctx context.Context, ids []string) ([]Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return v.scroll(ctx, &pb.Filter{Must: []*pb.Condition{matchAny("id", ids)}})
}

// FindByLocationIDs retrieves every passage referencing any of the given
// source ids — the deindex pipeline's filter-retriever (§4.9).
func (v *VectorStore) FindByLocationIDs(ctx context.Context, sourceIDs []string) ([]Record, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	return v.scroll(ctx, &pb.Filter{Must: []*pb.Condition{matchAny("locations[].id", sourceIDs)}})
}

// HasAnyLocation reports whether any stored passage references sourceID —
// the broker's "indexed" derivation (§4.11).
func (v *VectorStore) HasAnyLocation(ctx context.Context, sourceID string) (bool, error) {
	recs, err := v.scrollLimit(ctx, &pb.Filter{Must: []*pb.Condition{fieldMatch("locations[].id", sourceID)}}, 1)
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

func (v *VectorStore) scroll(ctx context.Context, filter *pb.Filter) ([]Record, error) {
	return v.scrollLimit(ctx, filter, 0)
}

// scrollLimit streams every matching point under filter, following the
// scroll cursor until exhausted. A non-zero limit stops early once that
// many records have been collected (used for existence checks).
func (v *VectorStore) scrollLimit(ctx context.Context, filter *pb.Filter, limit int) ([]Record, error) {
	var out []Record
	var offset *pb.PointId
	withPayload := &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}}
	withVectors := &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}}

	for {
		pageLimit := uint32(256)
		req := &pb.ScrollPoints{
			CollectionName: v.collection,
			Filter:         filter,
			Limit:          &pageLimit,
			Offset:         offset,
			WithPayload:    withPayload,
			WithVectors:    withVectors,
		}
		var resp *pb.ScrollResponse
		err := v.withBreaker(ctx, func(ctx context.Context) error {
			var err error
			resp, err = v.points.Scroll(ctx, req)
			return err
		})
		if err != nil {
			return nil, domain.NewStoreError("scroll", err)
		}
		for _, p := range resp.GetResult() {
			out = append(out, decodePoint(p))
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
		offset = resp.GetNextPageOffset()
		if offset == nil || len(resp.GetResult()) == 0 {
			break
		}
	}
	return out, nil
}

// Search performs unfiltered top-k cosine search.
func (v *VectorStore) Search(ctx context.Context, embedding []float32, topK int) ([]SearchHit, error) {
	return v.SearchFiltered(ctx, embedding, topK, nil)
}

// SearchFiltered performs top-k cosine search, optionally restricted to
// passages referencing one of sourceIDs (§4.10).
func (v *VectorStore) SearchFiltered(ctx context.Context, embedding []float32, topK int, sourceIDs []string) ([]SearchHit, error) {
	req := &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         embedding,
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	}
	if len(sourceIDs) > 0 {
		req.Filter = &pb.Filter{Must: []*pb.Condition{matchAny("locations[].id", sourceIDs)}}
	}

	var resp *pb.SearchResponse
	err := v.withBreaker(ctx, func(ctx context.Context) error {
		var err error
		resp, err = v.points.Search(ctx, req)
		return err
	})
	if err != nil {
		return nil, domain.NewStoreError("search", err)
	}

	hits := make([]SearchHit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = SearchHit{
			Record: decodePayloadOnly(r.GetPayload()),
			Score:  r.GetScore(),
		}
	}
	return hits, nil
}

func fieldMatch(key, value string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func matchAny(key string, values []string) *pb.Condition {
	return &pb.Condition{
		ConditionOneOf: &pb.Condition_Field{
			Field: &pb.FieldCondition{
				Key:   key,
				Match: &pb.Match{MatchValue: &pb.Match_Keywords{Keywords: &pb.RepeatedStrings{Strings: values}}},
			},
		},
	}
}
