package meetinghttp

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
)

const description = `> *Finally, enterprise-grade infrastructure for your drinking problems.*

An API that generates legitimate-sounding business meeting names for pub
gatherings. Pop one into your calendar and you are no longer "going to the
pub", you are attending a **Quarterly Pint Review**.

## Rate limiting

**5 requests per minute** per client. Past that you get cut off, just like
at a real pub.`

// DefaultAPIVersion is reported when Options.Version is empty.
const DefaultAPIVersion = "1.0.0"

type openAPIDoc struct {
	OpenAPI    string              `json:"openapi"`
	Info       openAPIInfo         `json:"info"`
	Paths      map[string]pathItem `json:"paths"`
	Components components          `json:"components"`
}

type openAPIInfo struct {
	Title       string  `json:"title"`
	Summary     string  `json:"summary"`
	Description string  `json:"description"`
	Version     string  `json:"version"`
	Contact     contact `json:"contact"`
	License     license `json:"license"`
}

type contact struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type license struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type pathItem struct {
	Get operation `json:"get"`
}

type operation struct {
	OperationID string              `json:"operationId"`
	Summary     string              `json:"summary"`
	Description string              `json:"description,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Responses   map[string]response `json:"responses"`
}

type response struct {
	Description string               `json:"description"`
	Headers     map[string]header    `json:"headers,omitempty"`
	Content     map[string]mediaType `json:"content,omitempty"`
}

type header struct {
	Description string            `json:"description"`
	Schema      map[string]string `json:"schema"`
}

type mediaType struct {
	Schema  ref `json:"schema"`
	Example any `json:"example,omitempty"`
}

type ref struct {
	Ref string `json:"$ref"`
}

type components struct {
	Schemas map[string]*jsonschema.Schema `json:"schemas"`
}

// schemaFor reflects v inline, without $defs, so it can sit under
// components/schemas.
func schemaFor(v any) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
		ExpandedStruct: true,
	}
	s := r.Reflect(v)
	s.Version = ""
	return s
}

func jsonBody(schema string, example any) map[string]mediaType {
	return map[string]mediaType{
		"application/json": {
			Schema:  ref{Ref: "#/components/schemas/" + schema},
			Example: example,
		},
	}
}

func meetingOperation(id string) operation {
	return operation{
		OperationID: id,
		Summary:     "Get a meeting name",
		Description: "Returns a single, randomly selected pub meeting name. Use it wisely. Or don't. We're not your manager.",
		Tags:        []string{"meetings"},
		Responses: map[string]response{
			"200": {
				Description: "A legitimate business meeting",
				Content:     jsonBody("MeetingResponse", MeetingResponse{MeetingName: "Quarterly Pint Review"}),
			},
			"429": {
				Description: "You've been cut off",
				Headers: map[string]header{
					"Retry-After": {
						Description: "Seconds until the quota window resets",
						Schema:      map[string]string{"type": "integer"},
					},
				},
				Content: jsonBody("ErrorResponse", ErrorResponse(CutOff)),
			},
		},
	}
}

func openAPI(version string) openAPIDoc {
	if version == "" {
		version = DefaultAPIVersion
	}
	return openAPIDoc{
		OpenAPI: "3.1.0",
		Info: openAPIInfo{
			Title:       "PMaaS",
			Summary:     "Pub Meeting as a Service",
			Description: description,
			Version:     version,
			Contact: contact{
				Name: "Complaints Department",
				URL:  "https://github.com/marco308/PMaaS/issues",
			},
			License: license{
				Name: "MIT - Do whatever you want",
				URL:  "https://opensource.org/licenses/MIT",
			},
		},
		Paths: map[string]pathItem{
			"/meeting":     {Get: meetingOperation("getMeeting")},
			"/api/meeting": {Get: meetingOperation("getApiMeeting")},
		},
		Components: components{
			Schemas: map[string]*jsonschema.Schema{
				"MeetingResponse": schemaFor(&MeetingResponse{}),
				"ErrorResponse":   schemaFor(&ErrorResponse{}),
			},
		},
	}
}

func mustOpenAPI(version string) []byte {
	b, err := json.Marshal(openAPI(version))
	if err != nil {
		panic("meetinghttp: render openapi: " + err.Error())
	}
	return b
}
