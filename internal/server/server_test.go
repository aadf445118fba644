package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tberndt/labelq/internal/alloc"
	"github.com/tberndt/labelq/internal/models"
	"github.com/tberndt/labelq/internal/store"
)

const testSecret = "test-secret"

type stubEngine struct {
	sample     func(reviewer string, limit int, exclude map[string]bool) ([]models.WorkItem, error)
	claim      func(key, reviewer string, force bool, roles []string) (*models.WorkItem, error)
	batch      func(reviewer string, limit int) ([]models.WorkItem, error)
	release    func(key string) (*models.WorkItem, error)
	transition func(key string, to models.Status, reviewer string) (*models.WorkItem, error)
}

func (s *stubEngine) Sample(_ context.Context, reviewer string, limit int, exclude map[string]bool) ([]models.WorkItem, error) {
	return s.sample(reviewer, limit, exclude)
}

func (s *stubEngine) ClaimSingle(_ context.Context, key, reviewer string, force bool, roles []string) (*models.WorkItem, error) {
	return s.claim(key, reviewer, force, roles)
}

func (s *stubEngine) SelfAssignBatch(_ context.Context, reviewer string, limit int) ([]models.WorkItem, error) {
	return s.batch(reviewer, limit)
}

func (s *stubEngine) Release(_ context.Context, key string) (*models.WorkItem, error) {
	return s.release(key)
}

func (s *stubEngine) Transition(_ context.Context, key string, to models.Status, reviewer string) (*models.WorkItem, error) {
	return s.transition(key, to, reviewer)
}

type stubBacklog struct {
	list func(f store.Filters, s store.Sort, p store.Page) ([]models.WorkItem, store.PageInfo, error)
}

func (b *stubBacklog) List(_ context.Context, f store.Filters, s store.Sort, p store.Page) ([]models.WorkItem, store.PageInfo, error) {
	return b.list(f, s, p)
}

func testHandler(t *testing.T, engine Engine, backlog Backlog) http.Handler {
	t.Helper()
	srv := New(Options{
		Engine:      engine,
		Backlog:     backlog,
		Port:        "0",
		PageSizeMin: 1,
		PageSizeMax: 100,
	})
	return srv.Handler(testSecret)
}

func bearerToken(t *testing.T, reviewer string, roles ...string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": reviewer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	if len(roles) > 0 {
		roleList := make([]any, len(roles))
		for i, r := range roles {
			roleList[i] = r
		}
		claims["roles"] = roleList
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestAuthRequired(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", "", claimRequest{Key: "a|b|c"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthRejectsBadSignature(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "mallory"}).
		SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", forged, claimRequest{Key: "a|b|c"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestClaimSingle(t *testing.T) {
	engine := &stubEngine{
		claim: func(key, reviewer string, force bool, roles []string) (*models.WorkItem, error) {
			assert.Equal(t, "medical|b0|item-1", key)
			assert.Equal(t, "alice", reviewer)
			assert.False(t, force)
			item := &models.WorkItem{Dataset: "medical", Bucket: "b0", ItemID: "item-1", Status: models.StatusDraft}
			item.AssignedTo = &reviewer
			return item, nil
		},
	}
	handler := testHandler(t, engine, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", bearerToken(t, "alice"),
		claimRequest{Key: "medical|b0|item-1"})
	require.Equal(t, http.StatusOK, rec.Code)

	var item models.WorkItem
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &item))
	assert.Equal(t, "alice", item.AssignedReviewer())
}

func TestClaimConflictMapsTo409(t *testing.T) {
	since := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	engine := &stubEngine{
		claim: func(key, reviewer string, force bool, roles []string) (*models.WorkItem, error) {
			return nil, &store.ConflictError{Key: key, Holder: "bob", HolderSince: &since}
		},
	}
	handler := testHandler(t, engine, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", bearerToken(t, "alice"),
		claimRequest{Key: "medical|b0|item-1"})
	require.Equal(t, http.StatusConflict, rec.Code)

	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "bob", resp.Holder)
	require.NotNil(t, resp.HolderSince)
	assert.Contains(t, *resp.HolderSince, "2026-08-01")
}

func TestForceClaimWithoutRoleMapsTo403(t *testing.T) {
	engine := &stubEngine{
		claim: func(key, reviewer string, force bool, roles []string) (*models.WorkItem, error) {
			return nil, &alloc.PermissionError{Reviewer: reviewer}
		},
	}
	handler := testHandler(t, engine, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", bearerToken(t, "alice"),
		claimRequest{Key: "medical|b0|item-1", Force: true})
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestClaimMissingItemMapsTo404(t *testing.T) {
	engine := &stubEngine{
		claim: func(key, reviewer string, force bool, roles []string) (*models.WorkItem, error) {
			return nil, &store.NotFoundError{Key: key}
		},
	}
	handler := testHandler(t, engine, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", bearerToken(t, "alice"),
		claimRequest{Key: "medical|b0|ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimBatchPassesRolesFromToken(t *testing.T) {
	var gotReviewer string
	var gotLimit int
	engine := &stubEngine{
		batch: func(reviewer string, limit int) ([]models.WorkItem, error) {
			gotReviewer, gotLimit = reviewer, limit
			return []models.WorkItem{{Dataset: "medical", Bucket: "b0", ItemID: "i1"}}, nil
		},
	}
	handler := testHandler(t, engine, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", bearerToken(t, "alice", "reviewer"),
		claimRequest{Limit: 5})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", gotReviewer)
	assert.Equal(t, 5, gotLimit)
}

func TestClaimRequiresKeyOrLimit(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/claim", bearerToken(t, "alice"), claimRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReleaseTransitions(t *testing.T) {
	engine := &stubEngine{
		transition: func(key string, to models.Status, reviewer string) (*models.WorkItem, error) {
			assert.Equal(t, models.StatusApproved, to)
			assert.Equal(t, "alice", reviewer)
			return &models.WorkItem{Dataset: "medical", Bucket: "b0", ItemID: "i1", Status: to}, nil
		},
	}
	handler := testHandler(t, engine, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/release", bearerToken(t, "alice"),
		releaseRequest{Key: "medical|b0|i1", Status: "approved"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReleaseRejectsUnknownStatus(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodPost, "/api/release", bearerToken(t, "alice"),
		releaseRequest{Key: "medical|b0|i1", Status: "archived"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemsClampsPageSize(t *testing.T) {
	var gotPage store.Page
	backlog := &stubBacklog{
		list: func(f store.Filters, s store.Sort, p store.Page) ([]models.WorkItem, store.PageInfo, error) {
			gotPage = p
			return nil, store.PageInfo{Page: p.Number, PageSize: p.Size}, nil
		},
	}
	handler := testHandler(t, &stubEngine{}, backlog)

	rec := doJSON(t, handler, http.MethodGet, "/api/items?page_size=9999&page=0", bearerToken(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 100, gotPage.Size)
	assert.Equal(t, 1, gotPage.Number)
}

func TestItemsRejectsUnknownSortField(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodGet, "/api/items?sort=password", bearerToken(t, "alice"), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestItemsPassesFilters(t *testing.T) {
	var gotFilters store.Filters
	var gotSort store.Sort
	backlog := &stubBacklog{
		list: func(f store.Filters, s store.Sort, p store.Page) ([]models.WorkItem, store.PageInfo, error) {
			gotFilters, gotSort = f, s
			return []models.WorkItem{}, store.PageInfo{}, nil
		},
	}
	handler := testHandler(t, &stubEngine{}, backlog)

	rec := doJSON(t, handler, http.MethodGet,
		"/api/items?status=draft&status=skipped&dataset=medical&tag=urgent&q=diabetes&sort=updatedAt&desc=true",
		bearerToken(t, "alice"), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []models.Status{models.StatusDraft, models.StatusSkipped}, gotFilters.Statuses)
	assert.Equal(t, "medical", gotFilters.Dataset)
	assert.Equal(t, []string{"urgent"}, gotFilters.Tags)
	assert.Equal(t, "diabetes", gotFilters.Text)
	assert.Equal(t, store.SortByUpdatedAt, gotSort.Field)
	assert.True(t, gotSort.Desc)
}

func TestHealthNeedsNoAuth(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStats(t *testing.T) {
	handler := testHandler(t, &stubEngine{}, &stubBacklog{})

	rec := doJSON(t, handler, http.MethodGet, "/stats", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "uptime_seconds")
}
