package semantic

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/hutschen/doc-audit-api/engine/domain"
)

// encodePayload converts a Record into Qdrant payload values: id and
// content as strings, locations as a list of {id, type, path} structs.
func encodePayload(r Record) map[string]*pb.Value {
	return map[string]*pb.Value{
		"id":        strValue(r.ID),
		"content":   strValue(r.Content),
		"locations": encodeLocations(r.Locations),
	}
}

func encodeLocations(locs []domain.Location) *pb.Value {
	values := make([]*pb.Value, len(locs))
	for i, loc := range locs {
		path := make([]*pb.Value, len(loc.Path))
		for j, seg := range loc.Path {
			path[j] = strValue(seg)
		}
		values[i] = &pb.Value{
			Kind: &pb.Value_StructValue{
				StructValue: &pb.Struct{
					Fields: map[string]*pb.Value{
						"id":   strValue(loc.ID),
						"type": strValue(loc.Type),
						"path": {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: path}}},
					},
				},
			},
		}
	}
	return &pb.Value{Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: values}}}
}

func strValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

// decodePoint converts a scrolled Qdrant point (with payload and vector)
// back into a Record.
func decodePoint(p *pb.RetrievedPoint) Record {
	r := decodePayloadOnly(p.GetPayload())
	if vectors := p.GetVectors(); vectors != nil {
		if vec := vectors.GetVector(); vec != nil {
			r.Embedding = vec.GetData()
		}
	}
	return r
}

// decodePayloadOnly converts just the payload fields of a Qdrant point
// (no vector) into a Record — used for search hits, which carry a score
// instead of the raw embedding.
func decodePayloadOnly(payload map[string]*pb.Value) Record {
	r := Record{}
	if v, ok := payload["id"]; ok {
		r.ID = v.GetStringValue()
	}
	if v, ok := payload["content"]; ok {
		r.Content = v.GetStringValue()
	}
	if v, ok := payload["locations"]; ok {
		r.Locations = decodeLocations(v.GetListValue())
	}
	return r
}

func decodeLocations(list *pb.ListValue) []domain.Location {
	if list == nil {
		return nil
	}
	out := make([]domain.Location, 0, len(list.GetValues()))
	for _, v := range list.GetValues() {
		st := v.GetStructValue()
		if st == nil {
			continue
		}
		loc := domain.Location{
			ID:   st.GetFields()["id"].GetStringValue(),
			Type: st.GetFields()["type"].GetStringValue(),
		}
		if pathVal, ok := st.GetFields()["path"]; ok {
			pathList := pathVal.GetListValue()
			if pathList != nil {
				for _, seg := range pathList.GetValues() {
					loc.Path = append(loc.Path, seg.GetStringValue())
				}
			}
		}
		out = append(out, loc)
	}
	return out
}
