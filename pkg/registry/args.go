package registry

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// DecodeArgs decodes a RunFunc's args map into a typed struct, for tool
// authors who'd rather declare a native Go shape than index args by hand
// (see builtins.go's fail_n_times for the manual alternative). Matches
// fields by "json" tag so a tool's arg struct can reuse the same tags its
// SchemaFor(v) input schema was reflected from.
//
// Grounded on the teacher's pkg/config/loader.go decodeConfig: a
// mapstructure.Decoder with WeaklyTypedInput (args arrive JSON-decoded, so
// numbers are float64 and need coercing to int/int64 fields) and the same
// duration/slice decode hooks, TagName switched from "yaml" to "json".
func DecodeArgs[T any](args map[string]any) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return out, fmt.Errorf("registry: build arg decoder: %w", err)
	}
	if err := decoder.Decode(args); err != nil {
		return out, fmt.Errorf("registry: decode args: %w", err)
	}
	return out, nil
}
