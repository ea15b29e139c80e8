// Package apitest runs an in-process fake of the document backend for tests.
package apitest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

const (
	DefaultToken    = "test-token"
	DefaultUsername = "alice"
	DefaultPassword = "secret1"
)

// UploadedDoc is what the fake remembers about one upload.
type UploadedDoc struct {
	ID      string
	Type    string
	Parts   []string
	Deleted bool
}

// Backend is a scriptable fake. Exported fields may be set before the first
// request; use the accessor methods afterwards.
type Backend struct {
	Server *httptest.Server

	// Token is the bearer token every authenticated route requires.
	Token string
	// Users maps username to password for login.
	Users map[string]string
	// StatusScript is the sequence of statuses each new job reports, the last
	// one repeating. Defaults to PROCESSING then done.
	StatusScript []string
	// Results are the OCR fields returned for a document, by uploaded part.
	Results map[constants.Side][]entity.ExtractedField
	// UploadStatus, DispatchStatus and SaveStatus force an error response
	// with the matching Detail when non-zero.
	UploadStatus   int
	DispatchStatus int
	SaveStatus     int
	Detail         string

	mu        sync.Mutex
	calls     map[string]int
	docs      map[string]*UploadedDoc
	jobs      map[string]*fakeJob
	saved     []map[string]any
	citizens  map[string]entity.Citizen
	users     map[string]entity.User
	nextID    int
	passwords map[string]string
}

type fakeJob struct {
	docID  string
	script []string
	seen   int
}

// New starts a fake backend. Close it with t.Cleanup(b.Close).
func New() *Backend {
	b := &Backend{
		Token:        DefaultToken,
		Users:        map[string]string{DefaultUsername: DefaultPassword},
		StatusScript: []string{"PROCESSING", "done"},
		Results:      map[constants.Side][]entity.ExtractedField{},
		calls:        map[string]int{},
		docs:         map[string]*UploadedDoc{},
		jobs:         map[string]*fakeJob{},
		citizens:     map[string]entity.Citizen{},
		users: map[string]entity.User{
			"1": {ID: "1", Username: DefaultUsername, Email: "alice@example.com", Role: "ADMIN", IsActive: true},
			"2": {ID: "2", Username: "bob", Email: "bob@example.com", Role: "USER", IsActive: true},
		},
		nextID:    100,
		passwords: map[string]string{},
	}
	b.Server = httptest.NewServer(b.routes())
	return b
}

// URL is the base URL to configure the client with.
func (b *Backend) URL() string { return b.Server.URL }

func (b *Backend) Close() { b.Server.Close() }

// Calls returns how many times the named route was hit, e.g. "upload".
func (b *Backend) Calls(route string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[route]
}

// TotalCalls counts every request the backend received.
func (b *Backend) TotalCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, c := range b.calls {
		n += c
	}
	return n
}

// Saved returns every accepted save payload.
func (b *Backend) Saved() []map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]map[string]any, len(b.saved))
	copy(out, b.saved)
	return out
}

// Documents returns every upload, in id order.
func (b *Backend) Documents() []UploadedDoc {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]UploadedDoc, 0, len(b.docs))
	for i := 0; i <= b.nextID; i++ {
		if d, ok := b.docs[fmt.Sprint(i)]; ok {
			out = append(out, *d)
		}
	}
	return out
}

func (b *Backend) hit(route string) {
	b.mu.Lock()
	b.calls[route]++
	b.mu.Unlock()
}

func (b *Backend) newID() string {
	b.nextID++
	return fmt.Sprint(b.nextID)
}

func (b *Backend) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", b.login)
		r.Post("/auth/register", b.register)

		r.Group(func(r chi.Router) {
			r.Use(b.requireToken)

			r.Post("/auth/refresh", b.refresh)
			r.Get("/users/me", b.me)
			r.Get("/users/", b.listUsers)
			r.Put("/users/{id}", b.updateUser)
			r.Delete("/users/{id}", b.deleteUser)
			r.Post("/users/change-password", b.changePassword)

			r.Post("/documents/upload/{type}", b.upload)
			r.Post("/documents/save-{type}-data", b.save)
			r.Get("/documents/", b.listDocuments)
			r.Get("/documents/{id}", b.getDocument)
			r.Delete("/documents/{id}", b.deleteDocument)
			r.Get("/documents/{type}/{citizenID}", b.recordByCitizen)

			r.Post("/ocr/process/{documentID}", b.dispatch)
			r.Get("/ocr/status/{jobID}", b.status)
			r.Get("/ocr/results/{documentID}", b.results)

			r.Get("/citizens/search", b.searchCitizens)
			r.Post("/citizens/", b.createCitizen)
			r.Get("/citizens/{id}", b.getCitizen)
			r.Put("/citizens/{id}", b.updateCitizen)
			r.Delete("/citizens/{id}", b.deleteCitizen)
		})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (b *Backend) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+b.Token {
			b.hit("unauthorized")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) login(w http.ResponseWriter, r *http.Request) {
	b.hit("login")
	if err := r.ParseForm(); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	user, pass := r.PostForm.Get("username"), r.PostForm.Get("password")
	b.mu.Lock()
	want, ok := b.Users[user]
	b.mu.Unlock()
	if !ok || want != pass {
		writeDetail(w, http.StatusUnauthorized, "Incorrect username or password")
		return
	}
	writeJSON(w, http.StatusOK, entity.Token{AccessToken: b.Token, TokenType: "bearer"})
}

func (b *Backend) register(w http.ResponseWriter, r *http.Request) {
	b.hit("register")
	var in struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.Users[in.Username]; exists {
		writeDetail(w, http.StatusBadRequest, "Username already registered")
		return
	}
	b.Users[in.Username] = in.Password
	u := entity.User{ID: entity.ID(b.newID()), Username: in.Username, Email: in.Email, Role: "USER", IsActive: true}
	b.users[u.ID.String()] = u
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) refresh(w http.ResponseWriter, _ *http.Request) {
	b.hit("refresh")
	writeJSON(w, http.StatusOK, entity.Token{AccessToken: b.Token, TokenType: "bearer"})
}

func (b *Backend) me(w http.ResponseWriter, _ *http.Request) {
	b.hit("me")
	b.mu.Lock()
	u := b.users["1"]
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) listUsers(w http.ResponseWriter, _ *http.Request) {
	b.hit("list_users")
	b.mu.Lock()
	out := make([]entity.User, 0, len(b.users))
	for _, id := range []string{"1", "2"} {
		if u, ok := b.users[id]; ok {
			out = append(out, u)
		}
	}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) updateUser(w http.ResponseWriter, r *http.Request) {
	b.hit("update_user")
	id := chi.URLParam(r, "id")
	var in struct {
		Email    *string `json:"email"`
		Role     *string `json:"role"`
		IsActive *bool   `json:"is_active"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	u, ok := b.users[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	if in.Email != nil {
		u.Email = *in.Email
	}
	if in.Role != nil {
		u.Role = *in.Role
	}
	if in.IsActive != nil {
		u.IsActive = *in.IsActive
	}
	b.users[id] = u
	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	b.hit("delete_user")
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.users[id]; !ok {
		writeDetail(w, http.StatusNotFound, "User not found")
		return
	}
	delete(b.users, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (b *Backend) changePassword(w http.ResponseWriter, r *http.Request) {
	b.hit("change_password")
	var in struct {
		Old string `json:"old_password"`
		New string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.Users[DefaultUsername] != in.Old {
		writeDetail(w, http.StatusBadRequest, "Old password is incorrect")
		return
	}
	b.Users[DefaultUsername] = in.New
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (b *Backend) upload(w http.ResponseWriter, r *http.Request) {
	b.hit("upload")
	if b.UploadStatus != 0 {
		writeDetail(w, b.UploadStatus, b.Detail)
		return
	}
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	var parts []string
	for _, side := range []string{"front", "back"} {
		f, _, err := r.FormFile(side)
		if err != nil {
			continue
		}
		n, _ := io.Copy(io.Discard, f)
		_ = f.Close()
		if n == 0 {
			writeDetail(w, http.StatusBadRequest, "empty "+side+" image")
			return
		}
		parts = append(parts, side)
	}
	if len(parts) == 0 {
		writeDetail(w, http.StatusBadRequest, "no image uploaded")
		return
	}
	b.mu.Lock()
	id := b.newID()
	b.docs[id] = &UploadedDoc{ID: id, Type: chi.URLParam(r, "type"), Parts: parts}
	b.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"document_id": id, "status": "PENDING"})
}

func (b *Backend) dispatch(w http.ResponseWriter, r *http.Request) {
	b.hit("dispatch")
	if b.DispatchStatus != 0 {
		writeDetail(w, b.DispatchStatus, b.Detail)
		return
	}
	docID := chi.URLParam(r, "documentID")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[docID]; !ok {
		writeDetail(w, http.StatusNotFound, "Document not found")
		return
	}
	id := b.newID()
	script := append([]string(nil), b.StatusScript...)
	b.jobs[id] = &fakeJob{docID: docID, script: script}
	// Integer ids, as the real backend emits for OCR jobs.
	writeJSON(w, http.StatusOK, map[string]any{"id": b.nextID, "document_id": docID, "status": "QUEUED"})
}

func (b *Backend) status(w http.ResponseWriter, r *http.Request) {
	b.hit("status")
	id := chi.URLParam(r, "jobID")
	b.mu.Lock()
	defer b.mu.Unlock()
	job, ok := b.jobs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Job not found")
		return
	}
	i := job.seen
	if i >= len(job.script) {
		i = len(job.script) - 1
	}
	job.seen++
	writeJSON(w, http.StatusOK, map[string]any{
		"id": id, "document_id": job.docID, "status": job.script[i], "model_name": "fake-ocr", "model_version": "1",
	})
}

func (b *Backend) results(w http.ResponseWriter, r *http.Request) {
	b.hit("results")
	docID := chi.URLParam(r, "documentID")
	b.mu.Lock()
	defer b.mu.Unlock()
	doc, ok := b.docs[docID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Document not found")
		return
	}
	out := []entity.ExtractedField{}
	for _, p := range doc.Parts {
		out = append(out, b.Results[constants.Side(p)]...)
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) save(w http.ResponseWriter, r *http.Request) {
	b.hit("save")
	if b.SaveStatus != 0 {
		writeDetail(w, b.SaveStatus, b.Detail)
		return
	}
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	docID, _ := payload["document_id"].(string)
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.docs[docID]; !ok {
		writeDetail(w, http.StatusNotFound, "Document not found")
		return
	}
	payload["document_type"] = strings.ToUpper(chi.URLParam(r, "type"))
	b.saved = append(b.saved, payload)
	citizenID := b.newID()
	name, _ := payload["name"].(string)
	b.citizens[citizenID] = entity.Citizen{ID: entity.ID(citizenID), Name: name, Nationality: "Việt Nam"}
	writeJSON(w, http.StatusOK, map[string]any{"id": len(b.saved), "citizen_id": citizenID})
}

func (b *Backend) recordByCitizen(w http.ResponseWriter, r *http.Request) {
	b.hit("record")
	citizenID := chi.URLParam(r, "citizenID")
	kind := strings.ToUpper(chi.URLParam(r, "type"))
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.citizens[citizenID]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Citizen not found")
		return
	}
	for i := len(b.saved) - 1; i >= 0; i-- {
		if b.saved[i]["document_type"] == kind && b.saved[i]["name"] == c.Name {
			rec := map[string]any{"citizen_id": citizenID}
			for k, v := range b.saved[i] {
				rec[k] = v
			}
			writeJSON(w, http.StatusOK, rec)
			return
		}
	}
	writeDetail(w, http.StatusNotFound, "Record not found")
}

func (b *Backend) listDocuments(w http.ResponseWriter, _ *http.Request) {
	b.hit("list_documents")
	var out []map[string]any
	for _, d := range b.Documents() {
		if !d.Deleted {
			out = append(out, map[string]any{"id": d.ID, "document_type": strings.ToUpper(d.Type), "status": "PENDING"})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) getDocument(w http.ResponseWriter, r *http.Request) {
	b.hit("get_document")
	b.mu.Lock()
	d, ok := b.docs[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok || d.Deleted {
		writeDetail(w, http.StatusNotFound, "Document not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": d.ID, "document_type": strings.ToUpper(d.Type), "status": "PENDING"})
}

func (b *Backend) deleteDocument(w http.ResponseWriter, r *http.Request) {
	b.hit("delete_document")
	b.mu.Lock()
	defer b.mu.Unlock()
	d, ok := b.docs[chi.URLParam(r, "id")]
	if !ok || d.Deleted {
		writeDetail(w, http.StatusNotFound, "Document not found")
		return
	}
	d.Deleted = true
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (b *Backend) searchCitizens(w http.ResponseWriter, r *http.Request) {
	b.hit("search_citizens")
	q := strings.ToLower(r.URL.Query().Get("q"))
	b.mu.Lock()
	defer b.mu.Unlock()
	out := []entity.Citizen{}
	for i := 0; i <= b.nextID; i++ {
		if c, ok := b.citizens[fmt.Sprint(i)]; ok && strings.Contains(strings.ToLower(c.Name), q) {
			out = append(out, c)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (b *Backend) createCitizen(w http.ResponseWriter, r *http.Request) {
	b.hit("create_citizen")
	var c entity.Citizen
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	c.ID = entity.ID(b.newID())
	b.citizens[c.ID.String()] = c
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) getCitizen(w http.ResponseWriter, r *http.Request) {
	b.hit("get_citizen")
	b.mu.Lock()
	c, ok := b.citizens[chi.URLParam(r, "id")]
	b.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, "Citizen not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) updateCitizen(w http.ResponseWriter, r *http.Request) {
	b.hit("update_citizen")
	var in entity.CitizenUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.citizens[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, "Citizen not found")
		return
	}
	if in.Name != nil {
		c.Name = *in.Name
	}
	if in.DateOfBirth != nil {
		c.DateOfBirth = *in.DateOfBirth
	}
	if in.Gender != nil {
		c.Gender = *in.Gender
	}
	if in.Nationality != nil {
		c.Nationality = *in.Nationality
	}
	b.citizens[id] = c
	writeJSON(w, http.StatusOK, c)
}

func (b *Backend) deleteCitizen(w http.ResponseWriter, r *http.Request) {
	b.hit("delete_citizen")
	id := chi.URLParam(r, "id")
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.citizens[id]; !ok {
		writeDetail(w, http.StatusNotFound, "Citizen not found")
		return
	}
	delete(b.citizens, id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
