package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/docshift/docshift/internal/engine"
)

// FetchRecords retrieves all records from a collection, normalized to plain
// Go values with the stable identifier exposed as source_id. Documents
// without an identifier violate the extractor contract and are dropped; the
// count of dropped documents is returned alongside the records.
func FetchRecords(db *mongo.Database, collectionName string, limit int) ([]engine.Record, int, error) {
	if collectionName == "" {
		return nil, 0, fmt.Errorf("collection name cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	collection := db.Collection(collectionName)

	findOptions := options.Find()
	if limit > 0 {
		findOptions.SetLimit(int64(limit))
	}

	cursor, err := collection.Find(ctx, bson.D{}, findOptions)
	if err != nil {
		return nil, 0, fmt.Errorf("error querying collection %s: %v", collectionName, err)
	}
	defer cursor.Close(ctx)

	var documents []map[string]interface{}
	if err := cursor.All(ctx, &documents); err != nil {
		return nil, 0, fmt.Errorf("error decoding documents: %v", err)
	}

	records := make([]engine.Record, 0, len(documents))
	dropped := 0
	for _, document := range documents {
		convertBSONTypes(document)

		record, ok := normalizeRecord(document)
		if !ok {
			dropped++
			continue
		}
		records = append(records, record)
	}

	return records, dropped, nil
}

// CountRecords counts documents in a collection matching a filter
func CountRecords(db *mongo.Database, collectionName string, filter map[string]interface{}) (int64, error) {
	if collectionName == "" {
		return 0, fmt.Errorf("collection name cannot be empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	count, err := db.Collection(collectionName).CountDocuments(ctx, toBSONDoc(filter))
	if err != nil {
		return 0, fmt.Errorf("error counting documents: %v", err)
	}

	return count, nil
}

// normalizeRecord exposes the document identifier as source_id. Documents
// already carrying a non-empty source_id keep it; otherwise the _id value is
// promoted. Documents with neither are rejected.
func normalizeRecord(document map[string]interface{}) (engine.Record, bool) {
	record := engine.Record(document)

	if sourceID, ok := record[engine.SourceIDField].(string); ok && sourceID != "" {
		return record, true
	}

	id, ok := record["_id"]
	if !ok || id == nil {
		return nil, false
	}

	sourceID := fmt.Sprintf("%v", id)
	if sourceID == "" {
		return nil, false
	}
	record[engine.SourceIDField] = sourceID
	delete(record, "_id")
	return record, true
}

// Helper function to convert map to BSON document
func toBSONDoc(m map[string]interface{}) bson.D {
	doc := bson.D{}
	for k, v := range m {
		if nestedMap, ok := v.(map[string]interface{}); ok {
			doc = append(doc, bson.E{Key: k, Value: toBSONDoc(nestedMap)})
		} else if nestedSlice, ok := v.([]interface{}); ok {
			doc = append(doc, bson.E{Key: k, Value: convertSliceToBSON(nestedSlice)})
		} else {
			doc = append(doc, bson.E{Key: k, Value: v})
		}
	}
	return doc
}

// Helper function to convert slice to BSON array
func convertSliceToBSON(slice []interface{}) interface{} {
	result := make(bson.A, len(slice))
	for i, v := range slice {
		if nestedMap, ok := v.(map[string]interface{}); ok {
			result[i] = toBSONDoc(nestedMap)
		} else if nestedSlice, ok := v.([]interface{}); ok {
			result[i] = convertSliceToBSON(nestedSlice)
		} else {
			result[i] = v
		}
	}
	return result
}

// Helper function to convert BSON types to standard Go types so records carry
// plain scalars, maps, and slices
func convertBSONTypes(doc map[string]interface{}) {
	for k, v := range doc {
		switch val := v.(type) {
		case bson.ObjectID:
			doc[k] = val.Hex()
		case bson.DateTime:
			doc[k] = time.Unix(0, int64(val)*int64(time.Millisecond)).Format(time.RFC3339)
		case bson.Binary:
			doc[k] = string(val.Data)
		case bson.Decimal128:
			doc[k] = val.String()
		case bson.D:
			// In v2, bson.D doesn't have Map() method, so convert manually
			nestedMap := make(map[string]interface{})
			for _, elem := range val {
				nestedMap[elem.Key] = elem.Value
			}
			convertBSONTypes(nestedMap)
			doc[k] = nestedMap
		case bson.A:
			arr := make([]interface{}, len(val))
			for i, item := range val {
				arr[i] = convertBSONValue(item)
			}
			doc[k] = arr
		case map[string]interface{}:
			convertBSONTypes(val)
		case []interface{}:
			for i, item := range val {
				val[i] = convertBSONValue(item)
			}
		}
	}
}

// convertBSONValue normalizes one array element or nested value
func convertBSONValue(value interface{}) interface{} {
	switch val := value.(type) {
	case bson.ObjectID:
		return val.Hex()
	case bson.DateTime:
		return time.Unix(0, int64(val)*int64(time.Millisecond)).Format(time.RFC3339)
	case bson.Decimal128:
		return val.String()
	case bson.D:
		nestedMap := make(map[string]interface{})
		for _, elem := range val {
			nestedMap[elem.Key] = elem.Value
		}
		convertBSONTypes(nestedMap)
		return nestedMap
	case bson.A:
		arr := make([]interface{}, len(val))
		for i, item := range val {
			arr[i] = convertBSONValue(item)
		}
		return arr
	case map[string]interface{}:
		convertBSONTypes(val)
		return val
	default:
		return value
	}
}
