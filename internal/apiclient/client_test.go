package apiclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient/apitest"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

func newTestClient(t *testing.T, token string) (*Client, *apitest.Backend) {
	t.Helper()
	b := apitest.New()
	t.Cleanup(b.Close)
	return NewClient(Config{BaseURL: b.URL() + "/"}, staticToken(token), nil), b
}

func writeImage(t *testing.T, side constants.Side) *entity.CapturedImage {
	t.Helper()
	p := filepath.Join(t.TempDir(), string(side)+".jpg")
	require.NoError(t, os.WriteFile(p, []byte("\xff\xd8\xff fake jpeg"), 0o644))
	return &entity.CapturedImage{Side: side, Path: p, MimeType: "image/jpeg"}
}

func TestLogin(t *testing.T) {
	c, _ := newTestClient(t, "")

	tok, err := c.Login(context.Background(), apitest.DefaultUsername, apitest.DefaultPassword)
	require.NoError(t, err)
	assert.Equal(t, apitest.DefaultToken, tok.AccessToken)

	_, err = c.Login(context.Background(), apitest.DefaultUsername, "wrong-password")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrUnauthorized))
	assert.Equal(t, "Incorrect username or password", ServerMessage(err))
}

func TestLogin_ValidatesBeforeNetwork(t *testing.T) {
	c, b := newTestClient(t, "")

	_, err := c.Login(context.Background(), "a!", "123")

	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, 0, b.TotalCalls())
}

func TestRegister(t *testing.T) {
	c, b := newTestClient(t, "")

	u, err := c.Register(context.Background(), RegisterRequest{Username: "carol_1", Email: "carol@example.com", Password: "hunter22"})
	require.NoError(t, err)
	assert.Equal(t, "carol_1", u.Username)
	assert.NotEmpty(t, u.ID)

	_, err = c.Register(context.Background(), RegisterRequest{Username: "carol_1", Email: "bad", Password: "hunter22"})
	require.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, 1, b.Calls("register"))
}

func TestAuthenticatedCallWithoutToken(t *testing.T) {
	c, b := newTestClient(t, "")
	img := writeImage(t, constants.SideFront)

	_, err := c.UploadSide(context.Background(), constants.DocTypeBHYT, img)
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	_, err = c.OCRStatus(context.Background(), "1")
	require.ErrorIs(t, err, common.ErrNotAuthenticated)

	assert.Equal(t, 0, b.TotalCalls())
}

func TestUploadDocument_MissingSideMakesNoCalls(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	front := writeImage(t, constants.SideFront)

	_, err := c.UploadDocument(context.Background(), constants.DocTypeCCCD, front, nil)
	require.ErrorIs(t, err, common.ErrMissingSide)

	_, err = c.UploadDocument(context.Background(), constants.DocTypeCCCD, nil, front)
	require.ErrorIs(t, err, common.ErrMissingSide)

	assert.Equal(t, 0, b.TotalCalls())
}

func TestUploadDocument_Pair(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	front, back := writeImage(t, constants.SideFront), writeImage(t, constants.SideBack)

	doc, err := c.UploadDocument(context.Background(), constants.DocTypeCCCD, front, back)

	require.NoError(t, err)
	assert.NotEmpty(t, doc.DocumentID)
	assert.Equal(t, constants.DocTypeCCCD, doc.DocumentType)
	docs := b.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"front", "back"}, docs[0].Parts)
	assert.Equal(t, "cccd", docs[0].Type)
}

func TestUploadDocument_SingleSidedIgnoresBack(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)

	_, err := c.UploadDocument(context.Background(), constants.DocTypeGPLX, writeImage(t, constants.SideFront), nil)

	require.NoError(t, err)
	assert.Equal(t, []string{"front"}, b.Documents()[0].Parts)
}

func TestUploadSide_PostsOneNamedPartToTheTypeRoute(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)

	_, err := c.UploadSide(context.Background(), constants.DocTypeCCCD, writeImage(t, constants.SideBack))

	require.NoError(t, err)
	docs := b.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, "cccd", docs[0].Type)
	assert.Equal(t, []string{"back"}, docs[0].Parts)
}

func TestUploadFailureCarriesServerMessage(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	b.UploadStatus = http.StatusRequestEntityTooLarge
	b.Detail = "Ảnh quá lớn"

	_, err := c.UploadSide(context.Background(), constants.DocTypeCCCD, writeImage(t, constants.SideFront))

	require.ErrorIs(t, err, common.ErrUploadFailed)
	assert.Equal(t, "Ảnh quá lớn", common.UserMessage(err))
	assert.Equal(t, 1, b.Calls("upload"))
}

func TestOCRFlow(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	b.StatusScript = []string{"QUEUED", "DONE"}
	b.Results[constants.SideFront] = []entity.ExtractedField{
		{FieldName: "name", RawText: "NGUYỄN VĂN A", ConfidenceScore: 0.97},
	}
	ctx := context.Background()

	doc, err := c.UploadSide(ctx, constants.DocTypeCCCD, writeImage(t, constants.SideFront))
	require.NoError(t, err)

	job, err := c.DispatchOCR(ctx, doc.DocumentID.String())
	require.NoError(t, err)
	assert.NotEmpty(t, job.JobID)
	assert.Equal(t, constants.JobStatusPending, job.Status)
	assert.Equal(t, doc.DocumentID, job.DocumentID)

	st, err := c.OCRStatus(ctx, job.JobID.String())
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, st.Status)
	st, err = c.OCRStatus(ctx, job.JobID.String())
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusDone, st.Status)
	assert.Equal(t, "fake-ocr", st.ModelName)

	fields, err := c.OCRResults(ctx, doc.DocumentID.String())
	require.NoError(t, err)
	require.Len(t, fields, 1)
	assert.Equal(t, "name", fields[0].FieldName)
	assert.InDelta(t, 0.97, fields[0].ConfidenceScore, 1e-9)
}

func TestDispatchOCR_Failure(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	b.DispatchStatus = http.StatusInternalServerError
	b.Detail = "queue unavailable"

	_, err := c.DispatchOCR(context.Background(), "42")

	require.ErrorIs(t, err, common.ErrOCRDispatchFailed)
	assert.Equal(t, "queue unavailable", common.UserMessage(err))
}

func TestSaveRecordAndReload(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	ctx := context.Background()
	doc, err := c.UploadSide(ctx, constants.DocTypeBHYT, writeImage(t, constants.SideFront))
	require.NoError(t, err)

	res, err := c.SaveRecord(ctx, constants.DocTypeBHYT, map[string]any{
		"document_id": doc.DocumentID.String(),
		"name":        "TRẦN THỊ B",
		"so_bhyt":     "HS4010123456789",
	})
	require.NoError(t, err)
	assert.Equal(t, entity.ID("1"), res.ID)
	require.NotEmpty(t, res.CitizenID)

	rec, err := c.RecordByCitizen(ctx, constants.DocTypeBHYT, res.CitizenID.String())
	require.NoError(t, err)
	assert.Equal(t, "HS4010123456789", rec["so_bhyt"])
	assert.Len(t, b.Saved(), 1)
}

func TestSaveRecord_Failure(t *testing.T) {
	c, b := newTestClient(t, apitest.DefaultToken)
	b.SaveStatus = http.StatusUnprocessableEntity
	b.Detail = "so_cccd already exists"

	_, err := c.SaveRecord(context.Background(), constants.DocTypeCCCD, map[string]any{"document_id": "1"})

	require.ErrorIs(t, err, common.ErrSaveFailed)
	assert.Equal(t, "so_cccd already exists", common.UserMessage(err))
}

func TestCitizensCRUD(t *testing.T) {
	c, _ := newTestClient(t, apitest.DefaultToken)
	ctx := context.Background()

	created, err := c.CreateCitizen(ctx, entity.Citizen{Name: "Lê Văn C", Gender: constants.GenderMale})
	require.NoError(t, err)
	assert.Equal(t, "Việt Nam", created.Nationality)

	found, err := c.SearchCitizens(ctx, "lê văn")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	name := "Lê Văn D"
	updated, err := c.UpdateCitizen(ctx, created.ID.String(), entity.CitizenUpdate{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, updated.Name)

	require.NoError(t, c.DeleteCitizen(ctx, created.ID.String()))
	_, err = c.GetCitizen(ctx, created.ID.String())
	assert.True(t, errors.Is(err, common.ErrNotFound))
}

func TestUsersAdmin(t *testing.T) {
	c, _ := newTestClient(t, apitest.DefaultToken)
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.True(t, me.IsAdmin())

	users, err := c.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)

	role := "ADMIN"
	u, err := c.UpdateUser(ctx, "2", UserUpdate{Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "ADMIN", u.Role)

	bad := "ROOT"
	_, err = c.UpdateUser(ctx, "2", UserUpdate{Role: &bad})
	require.ErrorIs(t, err, common.ErrValidation)

	require.NoError(t, c.DeleteUser(ctx, "2"))
	require.NoError(t, c.ChangePassword(ctx, apitest.DefaultPassword, "n3wpass"))
	require.ErrorIs(t, c.ChangePassword(ctx, "x", "short"), common.ErrValidation)
}

func TestIDsAreEscapedAsOneSegment(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Method+" "+r.RequestURI)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(Config{BaseURL: srv.URL}, staticToken("tok"), nil)
	ctx := context.Background()
	id := "a/b c?x"

	_, err := c.GetCitizen(ctx, id)
	require.NoError(t, err)
	_, err = c.OCRStatus(ctx, id)
	require.NoError(t, err)
	require.NoError(t, c.DeleteUser(ctx, id))
	_, err = c.GetDocument(ctx, "../users")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET " + APIPrefix + "/citizens/a%2Fb%20c%3Fx",
		"GET " + APIPrefix + "/ocr/status/a%2Fb%20c%3Fx",
		"DELETE " + APIPrefix + "/users/a%2Fb%20c%3Fx",
		"GET " + APIPrefix + "/documents/..%2Fusers",
	}, seen)
}

func TestDetailParsing(t *testing.T) {
	assert.Equal(t, "plain", detail([]byte(`{"detail":"plain"}`)))
	assert.Equal(t, "a; b", detail([]byte(`{"detail":[{"msg":"a"},{"msg":"b"}]}`)))
	assert.Equal(t, "m", detail([]byte(`{"message":"m"}`)))
	assert.Equal(t, "Bad Gateway", detail([]byte("Bad Gateway\n")))
}
