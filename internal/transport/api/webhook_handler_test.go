package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/fsdevblog/groph-market/internal/domain"
	"github.com/fsdevblog/groph-market/internal/logger"
	"github.com/fsdevblog/groph-market/internal/service"
	"github.com/fsdevblog/groph-market/internal/transport/api/mocks"
	"github.com/fsdevblog/groph-market/internal/transport/api/testutils"
	"github.com/fsdevblog/groph-market/internal/transport/gateway"
	"github.com/gin-gonic/gin"
	"github.com/golang/mock/gomock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/suite"
)

const webhookSecret = "whsec_test"

type WebhookHandlerTestSuite struct {
	suite.Suite
	router           *gin.Engine
	mockCtrl         *gomock.Controller
	mockOrderService *mocks.MockGatewayEventHandler
	mockDedup        *mocks.MockEventDeduplicator
}

func TestWebhookHandlerSuite(t *testing.T) {
	suite.Run(t, new(WebhookHandlerTestSuite))
}

func (s *WebhookHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	s.mockCtrl = gomock.NewController(s.T())
	s.mockOrderService = mocks.NewMockGatewayEventHandler(s.mockCtrl)
	s.mockDedup = mocks.NewMockEventDeduplicator(s.mockCtrl)

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewCounter(prometheus.CounterOpts{Name: "test_total", Help: "test"}))

	s.router = New(RouterArgs{
		Logger:         logger.New(io.Discard, "debug"),
		OrderService:   s.mockOrderService,
		Verifier:       gateway.NewVerifier(webhookSecret),
		Deduplicator:   s.mockDedup,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	})
}

func (s *WebhookHandlerTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func (s *WebhookHandlerTestSuite) sign(event domain.GatewayEvent, secret string) string {
	token, err := gateway.SignEvent(event, secret)
	s.Require().NoError(err)
	return token
}

func (s *WebhookHandlerTestSuite) post(body string) *http.Response {
	return testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodPost,
		URL:    RouteGroup + WebhookRoute,
		Body:   strings.NewReader(body),
	}, testutils.WithHeader("Content-Type", "application/jwt"))
}

func succeededEvent(id string) domain.GatewayEvent {
	return domain.GatewayEvent{
		ID:       id,
		Type:     domain.GatewayEventPaymentSucceeded,
		IntentID: "pi_" + id,
		Status:   domain.IntentStatusSucceeded,
	}
}

func (s *WebhookHandlerTestSuite) TestHandle() {
	cases := []struct {
		name       string
		eventID    string
		result     *service.ConfirmResult
		err        error
		wantStatus int
		wantBody   WebhookResponse
	}{
		{
			name:       "payment confirmed",
			eventID:    "evt_ok",
			result:     &service.ConfirmResult{OrderID: 7, Status: service.ConfirmSucceeded},
			wantStatus: http.StatusOK,
			wantBody:   WebhookResponse{OrderID: 7, Status: service.ConfirmSucceeded},
		}, {
			name:       "replayed confirmation",
			eventID:    "evt_replay",
			result:     &service.ConfirmResult{OrderID: 7, Status: service.ConfirmAlreadyProcessed},
			wantStatus: http.StatusOK,
			wantBody:   WebhookResponse{OrderID: 7, Status: service.ConfirmAlreadyProcessed},
		}, {
			name:       "unknown intent",
			eventID:    "evt_unknown",
			err:        fmt.Errorf("confirm payment pi_evt_unknown: %w", domain.ErrRecordNotFound),
			wantStatus: http.StatusNotFound,
		}, {
			name:       "order already cancelled",
			eventID:    "evt_cancelled",
			err:        fmt.Errorf("apply intent: %w", domain.ErrInvalidState),
			wantStatus: http.StatusConflict,
		}, {
			name:       "gateway unavailable",
			eventID:    "evt_down",
			err:        fmt.Errorf("confirm payment: %w", domain.ErrGateway),
			wantStatus: http.StatusBadGateway,
		}, {
			name:       "storage failure",
			eventID:    "evt_db",
			err:        errors.New("connection reset"),
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, c := range cases {
		s.Run(c.name, func() {
			event := succeededEvent(c.eventID)
			s.mockDedup.EXPECT().MarkProcessed(gomock.Any(), c.eventID).Return(nil)
			s.mockOrderService.EXPECT().
				HandleGatewayEvent(gomock.Any(), gomock.Any()).
				DoAndReturn(func(_ context.Context, got domain.GatewayEvent) (*service.ConfirmResult, error) {
					s.Equal(event.IntentID, got.IntentID)
					s.Equal(event.Type, got.Type)
					return c.result, c.err
				})
			if c.err != nil {
				s.mockDedup.EXPECT().Forget(gomock.Any(), c.eventID).Return(nil)
			}

			resp := s.post(s.sign(event, webhookSecret))
			defer resp.Body.Close()
			s.Equal(c.wantStatus, resp.StatusCode)

			if c.wantStatus == http.StatusOK {
				var body WebhookResponse
				s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
				s.Equal(c.wantBody, body)
			}
		})
	}
}

func (s *WebhookHandlerTestSuite) TestHandle_InvalidSignature() {
	s.mockDedup.EXPECT().MarkProcessed(gomock.Any(), gomock.Any()).Times(0)
	s.mockOrderService.EXPECT().HandleGatewayEvent(gomock.Any(), gomock.Any()).Times(0)

	for _, body := range []string{
		s.sign(succeededEvent("evt_forged"), "another secret"),
		"",
		"{\"type\":\"payment_intent.succeeded\"}",
	} {
		resp := s.post(body)
		s.Equal(http.StatusBadRequest, resp.StatusCode)
		s.NoError(resp.Body.Close())
	}
}

func (s *WebhookHandlerTestSuite) TestHandle_Duplicate() {
	s.mockDedup.EXPECT().MarkProcessed(gomock.Any(), "evt_dup").Return(domain.ErrDuplicateEvent)
	s.mockOrderService.EXPECT().HandleGatewayEvent(gomock.Any(), gomock.Any()).Times(0)

	resp := s.post(s.sign(succeededEvent("evt_dup"), webhookSecret))
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	var body WebhookResponse
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(&body))
	s.Equal(service.ConfirmAlreadyProcessed, body.Status)
}

func (s *WebhookHandlerTestSuite) TestHandle_DeduplicatorDown() {
	s.mockDedup.EXPECT().MarkProcessed(gomock.Any(), "evt_nodedup").Return(errors.New("redis down"))
	s.mockOrderService.EXPECT().
		HandleGatewayEvent(gomock.Any(), gomock.Any()).
		Return(&service.ConfirmResult{OrderID: 9, Status: service.ConfirmPending}, nil)

	resp := s.post(s.sign(succeededEvent("evt_nodedup"), webhookSecret))
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *WebhookHandlerTestSuite) TestMetrics() {
	resp := testutils.MakeRequest(testutils.RequestArgs{
		Router: s.router,
		Method: http.MethodGet,
		URL:    MetricsRoute,
	})
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Contains(string(body), "test_total")
}
