package meetinghttp

import (
	"encoding/json"
	"net/http"
	"testing"
)

func TestOpenAPI_Document(t *testing.T) {
	s := newTestServer(t, fixedPicker("x"))
	rec := s.get("/openapi.json", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var doc map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatal(err)
	}
	if doc["openapi"] != "3.1.0" {
		t.Fatalf("openapi = %v", doc["openapi"])
	}
	info := doc["info"].(map[string]any)
	if info["title"] != "PMaaS" || info["summary"] != "Pub Meeting as a Service" || info["version"] != DefaultAPIVersion {
		t.Fatalf("info = %v", info)
	}
	if info["contact"] == nil || info["license"] == nil {
		t.Fatalf("info missing contact or license: %v", info)
	}

	paths := doc["paths"].(map[string]any)
	for _, p := range []string{"/meeting", "/api/meeting"} {
		get := paths[p].(map[string]any)["get"].(map[string]any)
		responses := get["responses"].(map[string]any)
		for _, code := range []string{"200", "429"} {
			if _, ok := responses[code]; !ok {
				t.Errorf("%s missing %s response", p, code)
			}
		}
	}
	if _, ok := paths["/openapi.json"]; ok {
		t.Error("document should not describe itself")
	}
}

func TestOpenAPI_ReflectedSchemas(t *testing.T) {
	doc := openAPI("2.0.0")
	if doc.Info.Version != "2.0.0" {
		t.Fatalf("version = %q", doc.Info.Version)
	}

	meeting := doc.Components.Schemas["MeetingResponse"]
	if meeting == nil || meeting.Type != "object" {
		t.Fatalf("MeetingResponse schema = %+v", meeting)
	}
	if _, ok := meeting.Properties.Get("meeting_name"); !ok {
		t.Fatal("meeting_name property missing")
	}
	if len(meeting.Required) != 1 || meeting.Required[0] != "meeting_name" {
		t.Fatalf("required = %v", meeting.Required)
	}

	errSchema := doc.Components.Schemas["ErrorResponse"]
	if _, ok := errSchema.Properties.Get("message"); !ok {
		t.Fatal("message property missing")
	}
	for _, r := range errSchema.Required {
		if r == "message" {
			t.Fatal("message should be optional")
		}
	}
}

func TestOpenAPI_CutOffExample(t *testing.T) {
	op := openAPI("").Paths["/meeting"].Get
	ex, ok := op.Responses["429"].Content["application/json"].Example.(ErrorResponse)
	if !ok || ex.Error != CutOff.Error || ex.Message != CutOff.Message {
		t.Fatalf("example = %#v", op.Responses["429"].Content["application/json"].Example)
	}
	if _, ok := op.Responses["429"].Headers["Retry-After"]; !ok {
		t.Fatal("429 should document Retry-After")
	}
}
