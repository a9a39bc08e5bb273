package middleware

import (
	"encoding/json"
	"net/http/httptest"
)

func jsonDecode(w *httptest.ResponseRecorder, v any) error {
	return json.NewDecoder(w.Body).Decode(v)
}
