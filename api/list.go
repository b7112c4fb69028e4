package api

import "encoding/json"

// listEnvelope accepts both response shapes the collaborator uses for
// collections: a bare JSON array, or a paginated {"results": [...]} object.
type listEnvelope[T any] struct {
	Items []T
}

func (l *listEnvelope[T]) UnmarshalJSON(data []byte) error {
	var plain []T
	if err := json.Unmarshal(data, &plain); err == nil {
		l.Items = plain
		return nil
	}

	var paginated struct {
		Results []T `json:"results"`
	}
	if err := json.Unmarshal(data, &paginated); err != nil {
		return err
	}
	l.Items = paginated.Results
	return nil
}
