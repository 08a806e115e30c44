package persist

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// JSONRenderer renders entities as JSON and falls back to the Go syntax representation for values that can not be
// marshaled.
type JSONRenderer struct{}

// Render returns the diagnostic rendering of the entity.
func (JSONRenderer) Render(entity any) string {
	bytes, err := json.Marshal(entity)
	if err != nil {
		return fmt.Sprintf("%+v", entity)
	}

	return string(bytes)
}
