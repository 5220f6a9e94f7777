package transport

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"llamaworker/pkg/types"
)

//go:embed schema/command.json
var commandSchemaJSON string

const commandSchemaURL = "llamaworker://schema/command.json"

var commandSchema = jsonschema.MustCompileString(commandSchemaURL, commandSchemaJSON)

// DecodeCommand validates one wire message against the command schema and
// decodes it. RUN_MAIN fields the host omits take their default values.
func DecodeCommand(data []byte) (types.Command, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return types.Command{}, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := commandSchema.Validate(raw); err != nil {
		return types.Command{}, fmt.Errorf("invalid command: %s", flattenValidation(err))
	}
	cmd := types.Command{RunParams: types.DefaultRunParams()}
	if err := json.Unmarshal(data, &cmd); err != nil {
		return types.Command{}, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// peekID extracts the correlation id from a message that failed to decode.
func peekID(data []byte) string {
	var v struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &v)
	return v.ID
}

// flattenValidation turns a schema error tree into one line.
func flattenValidation(err error) string {
	ve, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return err.Error()
	}
	var msgs []string
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			loc := e.InstanceLocation
			if loc == "" {
				loc = "/"
			}
			msgs = append(msgs, loc+": "+e.Message)
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return strings.Join(msgs, "; ")
}
