package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autoflow.app/collab/internal/http/handler"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/service"
)

var _ = Describe("SessionHandler", func() {
	var (
		router *gin.Engine
		svc    *mockSessionService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockSessionService{}
		h := handler.NewSessionHandler(svc)
		router.GET("/sessions/:workflowId", h.Snapshot)
	})

	It("returns the merged snapshot", func() {
		svc.snapshotFn = func(_ context.Context, workflowID string) (*model.Snapshot, error) {
			return &model.Snapshot{
				Session:      model.Session{SessionID: "s-1", WorkflowID: workflowID, IsActive: true},
				Participants: []model.Participant{{UserID: "u-1", DisplayName: "Priya"}},
				Comments:     []model.Comment{{ID: "c-1", Content: "hello"}},
				Locks:        []model.NodeLock{{NodeID: "node-1", HolderID: "u-1"}},
			}, nil
		}

		req := httptest.NewRequest(http.MethodGet, "/sessions/wf-1", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusOK))
		var resp model.Snapshot
		Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.Session.SessionID).To(Equal("s-1"))
		Expect(resp.Participants).To(HaveLen(1))
		Expect(resp.Comments).To(HaveLen(1))
		Expect(resp.Locks).To(HaveLen(1))
	})

	It("maps a missing session to 404", func() {
		svc.snapshotFn = func(_ context.Context, _ string) (*model.Snapshot, error) {
			return nil, service.ErrSessionNotFound
		}

		req := httptest.NewRequest(http.MethodGet, "/sessions/wf-404", nil)
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		Expect(w.Code).To(Equal(http.StatusNotFound))
	})
})
