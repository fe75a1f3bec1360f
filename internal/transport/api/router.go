package api

import (
	"net/http"
	"time"

	"github.com/fsdevblog/groph-market/internal/cache"
	"github.com/fsdevblog/groph-market/internal/transport/api/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultServiceTimeout покрывает запрос состояния платежа в шлюзе с повторами и исполнение заказа.
	DefaultServiceTimeout = 30 * time.Second
)

const (
	RouteGroup     = "/api"
	WebhookRoute   = "/gateway/webhook"
	MetricsRoute   = "/metrics"
	maxWebhookBody = 64 << 10
)

type RouterArgs struct {
	Logger         *logrus.Logger
	OrderService   GatewayEventHandler
	Verifier       EventVerifier
	Deduplicator   EventDeduplicator
	MetricsHandler http.Handler
}

func New(args RouterArgs) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if args.Logger != nil {
		r.Use(middlewares.Logger(args.Logger))
	}
	r.Use(middlewares.Errors())

	dedup := args.Deduplicator
	if dedup == nil {
		dedup = cache.NopDeduplicator{}
	}
	webhookHandler := NewWebhookHandler(args.OrderService, args.Verifier, dedup, args.Logger)

	if args.MetricsHandler != nil {
		r.GET(MetricsRoute, gin.WrapH(args.MetricsHandler))
	}

	api := r.Group(RouteGroup)
	api.POST(WebhookRoute, webhookHandler.Handle)
	return r
}
