package launch

import (
	"encoding/base64"
	"encoding/json"

	"github.com/bowlofstew/porto/pkg/perr"
)

// encodeSpec/decodeSpec serialize a Spec for the PORTO_LAUNCH_SPEC
// environment variable carried across the helper's re-exec. JSON is fine
// here: this is a one-shot handoff between two processes of the same
// binary, not the durable record format pkg/store uses for container
// properties.
func encodeSpec(spec *Spec) string {
	b, err := json.Marshal(spec)
	if err != nil {
		// Spec is built entirely from this package's own types; a marshal
		// failure here means a programming error, not a runtime condition.
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

func decodeSpec(raw string) (*Spec, error) {
	b, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "decode launch spec")
	}
	var spec Spec
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, perr.Wrap(perr.Unknown, err, "unmarshal launch spec")
	}
	return &spec, nil
}
