package events

import (
	"encoding/json"
	"fmt"
)

// SetData stores any JSON-serializable struct in the Data field.
func (e *Event) SetData(data interface{}) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert %T: %w", data, err)
	}
	e.Data = dataMap
	return nil
}

// GetRunCompletedData retrieves RunCompletedData from the Data field.
func (e *Event) GetRunCompletedData() (*RunCompletedData, error) {
	var data RunCompletedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RunCompletedData: %w", err)
	}
	return &data, nil
}

// GetEmbeddingData retrieves EmbeddingData from the Data field.
func (e *Event) GetEmbeddingData() (*EmbeddingData, error) {
	var data EmbeddingData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse EmbeddingData: %w", err)
	}
	return &data, nil
}

// GetDuplicateClaimedData retrieves DuplicateClaimedData from the Data field.
func (e *Event) GetDuplicateClaimedData() (*DuplicateClaimedData, error) {
	var data DuplicateClaimedData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse DuplicateClaimedData: %w", err)
	}
	return &data, nil
}

// GetRelocationData retrieves RelocationData from the Data field.
func (e *Event) GetRelocationData() (*RelocationData, error) {
	var data RelocationData
	if err := mapToStruct(e.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse RelocationData: %w", err)
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
