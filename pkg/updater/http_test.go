// Copyright 2025 Matt Ramotar. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package updater

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

type widget struct {
	Name string `json:"name"`
}

func TestHTTPJSON_PostSucceeds(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var got widget
		_ = json.Unmarshal(body, &got)
		_ = json.NewEncoder(w).Encode(widget{Name: "ack:" + got.Name})
	}))
	defer srv.Close()

	u := NewHTTPJSON[string, widget, widget](srv.Client(), func(key string) string { return srv.URL })

	resp, err := u.Post(context.Background(), "k", widget{Name: "payload"})
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	if resp.Name != "ack:payload" {
		t.Fatalf("expected echoed ack, got %+v", resp)
	}
}

func TestHTTPJSON_PostSurfacesNon2xxAsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	u := NewHTTPJSON[string, widget, widget](srv.Client(), func(key string) string { return srv.URL })

	if _, err := u.Post(context.Background(), "k", widget{Name: "x"}); err == nil {
		t.Fatalf("expected error for non-2xx response")
	}
}
